package token_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/internal/metrics"
	"github.com/jrsteele09/go-miniapp-session/storage"
	"github.com/jrsteele09/go-miniapp-session/storage/repofake"
	"github.com/jrsteele09/go-miniapp-session/token"
)

type fakeRefresher struct {
	calls atomic.Int32
	delay time.Duration
	next  token.Pair
	err   error
	seen  chan string
}

func (f *fakeRefresher) RefreshTokens(ctx context.Context, refreshToken string) (token.Pair, error) {
	f.calls.Add(1)
	if f.seen != nil {
		f.seen <- refreshToken
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.next, f.err
}

type testFixture struct {
	backend   *repofake.FakeBackend
	storage   *storage.Store
	tokens    *token.Store
	refresher *fakeRefresher
	metrics   *metrics.Collectors
}

func setupTestFixture(t *testing.T, options ...token.StoreOption) *testFixture {
	t.Helper()
	backend := repofake.NewFakeBackend("fake")
	st := storage.NewStore(backend)
	t.Cleanup(func() { st.Close(context.Background()) })

	f := &testFixture{
		backend:   backend,
		storage:   st,
		refresher: &fakeRefresher{next: token.Pair{AccessToken: "access-2", RefreshToken: "refresh-2"}},
		metrics:   metrics.New(),
	}
	options = append([]token.StoreOption{token.WithRefresher(f.refresher), token.WithMetrics(f.metrics)}, options...)
	f.tokens = token.NewStore(st, options...)
	return f
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func TestRefreshAccessToken_SingleFlight(t *testing.T) {
	f := setupTestFixture(t)
	f.refresher.delay = 50 * time.Millisecond
	f.tokens.SetToken("access-1", "refresh-1")

	const callers = 20
	var wg sync.WaitGroup
	results := make([]token.Pair, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.tokens.RefreshAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), f.refresher.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, token.Pair{AccessToken: "access-2", RefreshToken: "refresh-2"}, results[i])
	}
	require.Equal(t, "access-2", f.tokens.AccessToken())
	require.Equal(t, "refresh-2", f.tokens.RefreshToken())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues("success")))
}

func TestRefreshAccessToken_SendsCurrentRefreshToken(t *testing.T) {
	f := setupTestFixture(t)
	f.refresher.seen = make(chan string, 1)
	f.tokens.SetToken("access-1", "refresh-1")

	_, err := f.tokens.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "refresh-1", <-f.refresher.seen)
}

func TestRefreshAccessToken_RejectedClearsBoth(t *testing.T) {
	f := setupTestFixture(t)
	f.refresher.err = errors.Wrapf(errors.ErrAuthInvalid, "refresh token revoked")
	require.NoError(t, f.tokens.SetTokenDurable(context.Background(), token.Pair{AccessToken: "a", RefreshToken: "r"}, time.Second))

	_, err := f.tokens.RefreshAccessToken(context.Background())
	require.Error(t, err)
	require.True(t, f.tokens.Pair().Empty())
	require.Empty(t, f.tokens.RefreshToken())
	require.Empty(t, f.backend.Keys())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Refreshes.WithLabelValues("rejected")))
}

func TestRefreshAccessToken_TransportFailureKeepsPair(t *testing.T) {
	f := setupTestFixture(t)
	f.refresher.err = errors.Wrapf(errors.ErrTransport, "connection refused")
	f.tokens.SetToken("a", "r")

	_, err := f.tokens.RefreshAccessToken(context.Background())
	require.True(t, errors.Is(err, errors.ErrTransport))
	require.Equal(t, token.Pair{AccessToken: "a", RefreshToken: "r"}, f.tokens.Pair())
}

func TestRefreshAccessToken_NoRefreshToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.tokens.RefreshAccessToken(context.Background())
	require.True(t, errors.Is(err, errors.ErrNoRefreshToken))
	require.Zero(t, f.refresher.calls.Load())
}

func TestSetToken_ClearIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tokens.SetTokenDurable(ctx, token.Pair{AccessToken: "a", RefreshToken: "r"}, time.Second))
	f.backend.Put(storage.KeyLanguage, "en")

	f.tokens.Clear(ctx)
	once := f.backend.Keys()
	f.tokens.Clear(ctx)
	f.tokens.SetToken("", "")
	f.tokens.Clear(ctx)

	require.Equal(t, once, f.backend.Keys())
	require.Equal(t, []string{storage.KeyLanguage}, f.backend.Keys())
	require.True(t, f.tokens.Pair().Empty())
}

func TestSetToken_KeepsRefreshWhenOmitted(t *testing.T) {
	f := setupTestFixture(t)
	f.tokens.SetToken("a1", "r1")
	f.tokens.SetToken("a2", "")
	require.Equal(t, token.Pair{AccessToken: "a2", RefreshToken: "r1"}, f.tokens.Pair())
}

func TestSetTokenDurable_Timeout(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.SetDelay(200 * time.Millisecond)

	err := f.tokens.SetTokenDurable(context.Background(), token.Pair{AccessToken: "a", RefreshToken: "r"}, 20*time.Millisecond)
	require.True(t, errors.Is(err, errors.ErrStorageTimeout))

	// memory and cache already hold the pair
	require.Equal(t, "a", f.tokens.AccessToken())
	v, ok := f.storage.ReadCached(storage.KeyToken)
	require.True(t, ok)
	require.Equal(t, "a", v)
}

func TestGetValidToken(t *testing.T) {
	t.Run("from warmed cache", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.Put(storage.KeyToken, "stored")
		f.backend.Put(storage.KeyRefreshToken, "stored-refresh")
		f.storage.Warm(context.Background())

		require.Equal(t, "stored", f.tokens.GetValidToken(context.Background()))
		require.Equal(t, "stored-refresh", f.tokens.RefreshToken())
	})

	t.Run("from durable read", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.Put(storage.KeyToken, "stored")
		require.Equal(t, "stored", f.tokens.GetValidToken(context.Background()))
	})

	t.Run("durable read is bounded", func(t *testing.T) {
		f := setupTestFixture(t, token.WithReadTimeout(20*time.Millisecond))
		f.backend.Put(storage.KeyToken, "stored")
		f.backend.SetDelay(500 * time.Millisecond)

		start := time.Now()
		require.Empty(t, f.tokens.GetValidToken(context.Background()))
		require.Less(t, time.Since(start), 300*time.Millisecond)
	})

	t.Run("expired jwt is absent", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		f := setupTestFixture(t, token.WithNowFunc(func() time.Time { return now }))

		f.tokens.SetToken(signedToken(t, now.Add(-time.Minute)), "r")
		require.Empty(t, f.tokens.GetValidToken(context.Background()))

		fresh := signedToken(t, now.Add(time.Minute))
		f.tokens.SetToken(fresh, "r")
		require.Equal(t, fresh, f.tokens.GetValidToken(context.Background()))
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := setupTestFixture(t)
		require.Empty(t, f.tokens.GetValidToken(context.Background()))
	})
}

func TestToken_TokenSource(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	f := setupTestFixture(t)
	at := signedToken(t, exp)
	f.tokens.SetToken(at, "r")

	tok, err := f.tokens.Token()
	require.NoError(t, err)
	require.Equal(t, at, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, "r", tok.RefreshToken)
	require.True(t, exp.Equal(tok.Expiry))

	// a missing access token refreshes
	f.tokens.Clear(context.Background())
	f.backend.Put(storage.KeyRefreshToken, "r-stored")
	tok, err = f.tokens.Token()
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
}

func TestGetValidToken_LogoutIsNotUndoneByQueuedWrites(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Put(storage.KeyToken, "old-access")
	f.backend.Put(storage.KeyRefreshToken, "old-refresh")
	f.storage.Warm(context.Background())
	require.Equal(t, "old-access", f.tokens.GetValidToken(context.Background()))

	f.backend.SetDelay(50 * time.Millisecond)
	f.storage.SetAsync(storage.KeyTheme, "dark")
	f.tokens.SetToken("", "")

	require.Empty(t, f.tokens.GetValidToken(context.Background()))
	require.Empty(t, f.tokens.AccessToken())
	require.Empty(t, f.tokens.RefreshToken())

	f.tokens.Clear(context.Background())
	_, ok := f.backend.Peek(storage.KeyToken)
	require.False(t, ok)
	_, ok = f.backend.Peek(storage.KeyRefreshToken)
	require.False(t, ok)
}

func TestGetValidToken_SeesQueuedLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.backend.Put(storage.KeyToken, "old-access")
	f.backend.SetDelay(50 * time.Millisecond)

	f.tokens.SetToken("new-access", "new-refresh")
	v, ok := f.storage.Get(context.Background(), storage.KeyToken)
	require.True(t, ok)
	require.Equal(t, "new-access", v)
	require.Equal(t, "new-access", f.tokens.GetValidToken(context.Background()))
}
