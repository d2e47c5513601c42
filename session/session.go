// Package session is the composition root: one Session per app launch owns the detector,
// the storage adapter, the token store, the API client and the login coordinator.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/apiclient"
	"github.com/jrsteele09/go-miniapp-session/auth"
	"github.com/jrsteele09/go-miniapp-session/internal/config"
	"github.com/jrsteele09/go-miniapp-session/internal/metrics"
	"github.com/jrsteele09/go-miniapp-session/platform"
	"github.com/jrsteele09/go-miniapp-session/storage"
	"github.com/jrsteele09/go-miniapp-session/token"
)

var (
	ErrNotStarted = errors.New("session not started")
	ErrStarted    = errors.New("session already started")
)

// Config is the slice of the process configuration a Session reads.
type Config interface {
	config.APIConfig
	config.AuthConfig
}

type Session struct {
	cfg        Config
	env        platform.Environment
	backends   storage.Backends
	flags      platform.SessionFlags
	navigator  auth.Navigator
	httpClient *http.Client
	names      auth.NameSource
	log        zerolog.Logger
	metrics    *metrics.Collectors
	detector   *platform.Detector

	mu          sync.Mutex
	started     bool
	platform    platform.Platform
	store       *storage.Store
	tokens      *token.Store
	client      *apiclient.Client
	coordinator *auth.Coordinator
}

type Option func(*Session)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithNavigator(nav auth.Navigator) Option {
	return func(s *Session) {
		s.navigator = nav
	}
}

// WithFlags shares session flags with the host, e.g. across in-app navigations.
func WithFlags(flags platform.SessionFlags) Option {
	return func(s *Session) {
		s.flags = flags
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Session) {
		s.httpClient = hc
	}
}

// WithVKNameSource supplies the VK user's name for first-time VK registration.
func WithVKNameSource(names auth.NameSource) Option {
	return func(s *Session) {
		s.names = names
	}
}

func New(cfg Config, env platform.Environment, backends storage.Backends, options ...Option) *Session {
	s := &Session{
		cfg:      cfg,
		env:      env,
		backends: backends,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.flags == nil {
		s.flags = platform.NewMemoryFlags()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.detector = platform.NewDetector(env, s.flags, platform.WithDetectorLogger(s.log))
	return s
}

// Start detects the platform once, warms the storage cache for that platform's backend and
// runs the automatic login. A failed login is reported in the Result, not as an error.
func (s *Session) Start(ctx context.Context) (auth.Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return auth.Result{}, ErrStarted
	}

	p := s.detector.Detect()
	backend, err := s.backends.ForPlatform(p)
	if err != nil {
		s.mu.Unlock()
		return auth.Result{}, errors.Wrap(err, "[Session.Start]")
	}
	log := s.log.With().Str("platform", p.String()).Logger()

	store := storage.NewStore(backend, storage.WithLogger(log))
	tokens := token.NewStore(store,
		token.WithLogger(log),
		token.WithMetrics(s.metrics),
		token.WithReadTimeout(s.cfg.GetTokenReadTimeout()),
	)
	clientOpts := []apiclient.Option{apiclient.WithLogger(log), apiclient.WithMetrics(s.metrics)}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(s.httpClient))
	}
	client := apiclient.New(s.cfg, tokens, clientOpts...)
	tokens.SetRefresher(client)

	deps := auth.Deps{
		Detector:  s.detector,
		Client:    client,
		Tokens:    tokens,
		Storage:   store,
		Flags:     s.flags,
		Navigator: s.navigator,
		Config:    s.cfg,
	}
	var vkOpts []auth.VKStrategyOption
	if s.names != nil {
		vkOpts = append(vkOpts, auth.WithNameSource(s.names))
	}
	orchOpts := []auth.OrchestratorOption{auth.WithLogger(log), auth.WithMetrics(s.metrics)}
	coordinator := auth.NewCoordinator(detected(p), []*auth.Orchestrator{
		auth.NewOrchestrator(auth.NewTelegramStrategy(s.env, client, s.cfg), deps, orchOpts...),
		auth.NewOrchestrator(auth.NewVKStrategy(s.env, client, s.cfg, vkOpts...), deps, orchOpts...),
		auth.NewOrchestrator(auth.NewWebStrategy(), deps, orchOpts...),
	}, auth.WithCoordinatorLogger(log))

	s.started = true
	s.platform = p
	s.store = store
	s.tokens = tokens
	s.client = client
	s.coordinator = coordinator
	s.mu.Unlock()

	store.Warm(ctx)
	log.Info().Str("backend", store.BackendName()).Msg("session started")

	res := coordinator.Run(ctx)
	log.Info().Str("state", res.State.String()).Bool("soft", res.Soft).Msg("automatic login finished")
	return res, nil
}

// Close unmounts the login flow and flushes pending storage writes, waiting at most the
// durable write wait.
func (s *Session) Close() {
	s.mu.Lock()
	coordinator, store := s.coordinator, s.store
	s.mu.Unlock()
	if coordinator != nil {
		coordinator.Unmount()
	}
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetDurableWriteWait())
		defer cancel()
		store.Close(ctx)
	}
}

// Login is the manual email/password flow.
func (s *Session) Login(ctx context.Context, email, password string) (*apiclient.User, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.loggedIn(ctx, client, resp), nil
}

func (s *Session) Register(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.User, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.loggedIn(ctx, client, resp), nil
}

// Logout drops both tokens and the stored platform binding. Calling it twice is harmless.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	tokens, store := s.tokens, s.store
	s.mu.Unlock()
	if tokens == nil {
		return ErrNotStarted
	}
	tokens.Clear(ctx)
	store.Remove(ctx, storage.KeyPlatformUserID)
	s.flags.Delete(platform.FlagJustLoggedIn)
	return nil
}

func (s *Session) CurrentUser(ctx context.Context) (*apiclient.User, error) {
	client, err := s.apiClient()
	if err != nil {
		return nil, err
	}
	return client.Me(ctx)
}

// Platform is the platform detected by Start, Web before that.
func (s *Session) Platform() platform.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platform
}

// Client is nil until Start.
func (s *Session) Client() *apiclient.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Storage is nil until Start.
func (s *Session) Storage() *storage.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// States reports every orchestrator's state.
func (s *Session) States() map[platform.Platform]auth.State {
	s.mu.Lock()
	coordinator := s.coordinator
	s.mu.Unlock()
	if coordinator == nil {
		return nil
	}
	return coordinator.States()
}

func (s *Session) apiClient() (*apiclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, ErrNotStarted
	}
	return s.client, nil
}

func (s *Session) loggedIn(ctx context.Context, client *apiclient.Client, resp apiclient.AuthResponse) *apiclient.User {
	if err := client.Tokens().SetTokenDurable(ctx, resp.Pair(), s.cfg.GetDurableWriteWait()); err != nil {
		s.log.Warn().Err(err).Msg("login tokens not yet durable")
	}
	s.flags.Set(platform.FlagJustLoggedIn, "true")
	return resp.User
}

// detected is a PlatformSource pinned to the platform Start detected, so dispatch and
// backend selection agree.
type detected platform.Platform

func (d detected) Detect() platform.Platform { return platform.Platform(d) }
