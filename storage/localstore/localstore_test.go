package localstore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-miniapp-session/storage/localstore"
)

func TestStore_RoundTripIsSynchronous(t *testing.T) {
	s, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "token", "abc"))
	v, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", v)

	require.NoError(t, s.Remove(ctx, "token"))
	_, ok, err = s.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)

	// removing an absent key is a no-op
	require.NoError(t, s.Remove(ctx, "token"))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := localstore.Open(dir)
	require.NoError(t, err)
	deviceID := s.DeviceID()
	require.NotEmpty(t, deviceID)
	require.NoError(t, s.Set(ctx, "language", "ru"))

	reopened, err := localstore.Open(dir)
	require.NoError(t, err)
	require.Equal(t, deviceID, reopened.DeviceID())
	v, ok, err := reopened.Get(ctx, "language")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ru", v)

	require.NoError(t, reopened.Clear(ctx))
	_, ok, _ = reopened.Get(ctx, "language")
	require.False(t, ok)
	require.Equal(t, deviceID, reopened.DeviceID(), "clear keeps the device id")
}

func TestStore_SealedAtRest(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := localstore.Open(dir, localstore.WithSealKey("passphrase"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "token", "very-secret-token"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be renamed away")
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "very-secret-token"))

	reopened, err := localstore.Open(dir, localstore.WithSealKey("passphrase"))
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "very-secret-token", v)

	_, err = localstore.Open(dir, localstore.WithSealKey("wrong"))
	require.Error(t, err)
}
