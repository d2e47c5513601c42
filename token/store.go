package token

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/internal/metrics"
	"github.com/jrsteele09/go-miniapp-session/storage"
)

const (
	defaultReadTimeout = 100 * time.Millisecond
	refreshKey         = "refresh"
)

// Pair is the access/refresh token pair. Both values are opaque bearer strings.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (p Pair) Empty() bool {
	return p.AccessToken == ""
}

// Refresher exchanges a refresh token for a new pair at the backend.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (Pair, error)
}

// Store owns the current token pair. Storage is a durability mirror: memory wins for the
// running process, storage wins across restarts.
type Store struct {
	storage     *storage.Store
	log         zerolog.Logger
	readTimeout time.Duration
	nowFunc     func() time.Time
	metrics     *metrics.Collectors

	mu        sync.RWMutex
	pair      Pair
	refresher Refresher

	group singleflight.Group
}

var _ oauth2.TokenSource = (*Store)(nil)

type StoreOption func(*Store)

func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// WithReadTimeout bounds the durable read used when the cache has no token.
func WithReadTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.readTimeout = d
	}
}

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithMetrics(m *metrics.Collectors) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithRefresher(r Refresher) StoreOption {
	return func(s *Store) {
		s.refresher = r
	}
}

func NewStore(st *storage.Store, options ...StoreOption) *Store {
	s := &Store{
		storage:     st,
		log:         zerolog.Nop(),
		readTimeout: defaultReadTimeout,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SetRefresher installs the refresh call once the API client exists.
func (s *Store) SetRefresher(r Refresher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = r
}

// SetToken replaces the pair in memory and writes it through to storage without waiting.
// An empty access token logs out. An empty refresh token keeps the current one.
func (s *Store) SetToken(access, refresh string) {
	if access == "" {
		s.clear()
		return
	}
	s.set(access, refresh)
}

// SetTokenDurable is SetToken that also waits, up to timeout, for the storage write to
// settle. A timeout is reported but the pair stays in memory.
func (s *Store) SetTokenDurable(ctx context.Context, pair Pair, timeout time.Duration) error {
	if pair.Empty() {
		s.Clear(ctx)
		return nil
	}
	done := s.set(pair.AccessToken, pair.RefreshToken)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, ch := range done {
		select {
		case <-ch:
		case <-ctx.Done():
			return errors.Wrapf(errors.ErrStorageTimeout, "[Store.SetTokenDurable] %s", s.storage.BackendName())
		}
	}
	return nil
}

// Clear logs out: both tokens are dropped from memory and storage. Calling it again is a
// no-op.
func (s *Store) Clear(ctx context.Context) {
	for _, ch := range s.clear() {
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken
}

// RefreshToken returns the refresh token from memory, falling back to the storage cache.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	rt := s.pair.RefreshToken
	s.mu.RUnlock()
	if rt != "" {
		return rt
	}
	rt, _ = s.storage.ReadCached(storage.KeyRefreshToken)
	return rt
}

func (s *Store) Pair() Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// GetValidToken resolves the access token: memory, then the storage cache, then a durable
// read bounded by the read timeout. A JWT whose exp has passed counts as absent. Returns ""
// when nothing usable is found; the caller proceeds unauthenticated.
func (s *Store) GetValidToken(ctx context.Context) string {
	if at := s.AccessToken(); at != "" {
		if s.expired(at) {
			return ""
		}
		return at
	}

	if at, ok := s.storage.ReadCached(storage.KeyToken); ok && at != "" {
		rt, _ := s.storage.ReadCached(storage.KeyRefreshToken)
		s.adopt(at, rt)
		if s.expired(at) {
			return ""
		}
		return at
	}

	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	at, ok := s.storage.Get(ctx, storage.KeyToken)
	if !ok || at == "" {
		return ""
	}
	rt, _ := s.storage.Get(ctx, storage.KeyRefreshToken)
	s.adopt(at, rt)
	if s.expired(at) {
		return ""
	}
	return at
}

// RefreshAccessToken exchanges the refresh token for a new pair. Concurrent callers share
// one backend call and all receive its result. On success both tokens are replaced; when
// the backend rejects the refresh both are cleared. Transport failures keep the pair.
func (s *Store) RefreshAccessToken(ctx context.Context) (Pair, error) {
	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Pair{}, res.Err
		}
		return res.Val.(Pair), nil
	case <-ctx.Done():
		return Pair{}, errors.Wrapf(errors.ErrTimeout, "[Store.RefreshAccessToken] %v", ctx.Err())
	}
}

// Token implements oauth2.TokenSource. An expired or missing access token triggers a
// refresh.
func (s *Store) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	at := s.GetValidToken(ctx)
	if at == "" {
		pair, err := s.RefreshAccessToken(ctx)
		if err != nil {
			return nil, err
		}
		at = pair.AccessToken
	}
	tok := &oauth2.Token{
		AccessToken:  at,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken(),
	}
	if exp, ok := expiry(at); ok {
		tok.Expiry = exp
	}
	return tok, nil
}

func (s *Store) refresh(ctx context.Context) (Pair, error) {
	s.mu.RLock()
	refresher := s.refresher
	s.mu.RUnlock()
	if refresher == nil {
		return Pair{}, errors.Wrapf(errors.ErrUnsupported, "[Store.refresh] no refresher configured")
	}

	rt := s.RefreshToken()
	if rt == "" {
		readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
		rt, _ = s.storage.Get(readCtx, storage.KeyRefreshToken)
		cancel()
	}
	if rt == "" {
		s.count("no_token")
		s.Clear(ctx)
		return Pair{}, errors.ErrNoRefreshToken
	}

	pair, err := refresher.RefreshTokens(ctx, rt)
	if err != nil {
		if errors.Is(err, errors.ErrTransport) || errors.Is(err, errors.ErrTimeout) {
			s.count("transport_error")
			s.log.Warn().Err(err).Msg("token refresh did not reach the server, keeping tokens")
			return Pair{}, err
		}
		s.count("rejected")
		s.log.Info().Err(err).Msg("token refresh rejected, clearing tokens")
		s.Clear(ctx)
		return Pair{}, err
	}
	if pair.Empty() {
		s.count("rejected")
		s.Clear(ctx)
		return Pair{}, errors.Wrapf(errors.ErrAuthInvalid, "[Store.refresh] empty access token")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = rt
	}

	s.set(pair.AccessToken, pair.RefreshToken)
	s.count("success")
	return pair, nil
}

// set updates memory and queues the storage writes, returning their completion channels.
func (s *Store) set(access, refresh string) []<-chan struct{} {
	s.mu.Lock()
	s.pair.AccessToken = access
	if refresh != "" {
		s.pair.RefreshToken = refresh
	}
	refresh = s.pair.RefreshToken
	s.mu.Unlock()

	done := []<-chan struct{}{s.storage.SetAsync(storage.KeyToken, access)}
	if refresh != "" {
		done = append(done, s.storage.SetAsync(storage.KeyRefreshToken, refresh))
	}
	return done
}

func (s *Store) clear() []<-chan struct{} {
	s.mu.Lock()
	s.pair = Pair{}
	s.mu.Unlock()
	return []<-chan struct{}{
		s.storage.RemoveAsync(storage.KeyToken),
		s.storage.RemoveAsync(storage.KeyRefreshToken),
	}
}

// adopt loads a pair found in storage into memory unless memory was set meanwhile.
func (s *Store) adopt(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair.AccessToken != "" {
		return
	}
	s.pair = Pair{AccessToken: access, RefreshToken: refresh}
}

func (s *Store) expired(accessToken string) bool {
	exp, ok := expiry(accessToken)
	return ok && !s.nowFunc().Before(exp)
}

func (s *Store) count(outcome string) {
	if s.metrics != nil {
		s.metrics.Refreshes.WithLabelValues(outcome).Inc()
	}
}

// expiry peeks at the exp claim without verifying the signature. Opaque tokens have none.
func expiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
