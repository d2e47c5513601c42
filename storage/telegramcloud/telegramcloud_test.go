package telegramcloud_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/storage/repofake"
	"github.com/jrsteele09/go-miniapp-session/storage/telegramcloud"
)

func TestBackend_RoundTrip(t *testing.T) {
	cloud := repofake.NewFakeCloudStorage()
	cloud.Latency = 5 * time.Millisecond
	b := telegramcloud.New(cloud)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Set(ctx, "token", "abc"))
	v, ok, err := b.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", v)

	require.NoError(t, b.Remove(ctx, "token"))
	_, ok, err = b.Get(ctx, "token")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBackend_Clear(t *testing.T) {
	cloud := repofake.NewFakeCloudStorage()
	b := telegramcloud.New(cloud)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "token", "a"))
	require.NoError(t, b.Set(ctx, "refresh_token", "b"))
	require.NoError(t, b.Clear(ctx))

	_, ok := cloud.Peek("token")
	require.False(t, ok)
	_, ok = cloud.Peek("refresh_token")
	require.False(t, ok)

	// empty storage
	require.NoError(t, b.Clear(ctx))
}

func TestBackend_KeyAndValueRules(t *testing.T) {
	b := telegramcloud.New(repofake.NewFakeCloudStorage())
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("k", telegramcloud.MaxKeyLength+1)},
		{"bad chars", "user:token"},
		{"space", "my key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Set(ctx, tt.key, "v")
			require.True(t, errors.Is(err, errors.ErrInvalidKey))
		})
	}

	require.NoError(t, b.Set(ctx, strings.Repeat("k", telegramcloud.MaxKeyLength), "v"))

	err := b.Set(ctx, "big", strings.Repeat("v", telegramcloud.MaxValueLength+1))
	require.True(t, errors.Is(err, errors.ErrValueTooLarge))
}

func TestBackend_CallbackErrors(t *testing.T) {
	cloud := repofake.NewFakeCloudStorage()
	cloud.Fail = true
	b := telegramcloud.New(cloud)

	err := b.Set(context.Background(), "token", "v")
	require.ErrorIs(t, err, repofake.ErrInjected)

	_, _, err = b.Get(context.Background(), "token")
	require.ErrorIs(t, err, repofake.ErrInjected)
}

func TestBackend_SilentSDKTimesOut(t *testing.T) {
	cloud := repofake.NewFakeCloudStorage()
	cloud.Silent = true
	b := telegramcloud.New(cloud)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := b.Get(ctx, "token")
	require.True(t, errors.Is(err, errors.ErrStorageTimeout))
}
