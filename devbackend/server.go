// Package devbackend is an in-memory implementation of the auth REST contract the session
// library consumes. It backs the integration tests and cmd/devbackend.
package devbackend

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/internal/config"
)

const (
	RouteLogin    = "/auth/login"
	RouteRegister = "/auth/register"
	RouteTelegram = "/auth/telegram"
	RouteVK       = "/auth/vk"
	RouteRefresh  = "/auth/refresh"
	RouteMe       = "/auth/me"
)

type Server struct {
	cfg     config.BackendConfig
	users   UserRepo
	refresh *RefreshManager
	access  *AccessTokens
	router  chi.Router
	log     zerolog.Logger
	nowFunc func() time.Time

	// serialises account creation and linking
	accounts sync.Mutex
}

type ServerOption func(*Server)

func WithLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

func WithNowFunc(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(cfg config.BackendConfig, users UserRepo, refreshRepo RefreshRepo, options ...ServerOption) *Server {
	s := &Server{
		cfg:     cfg,
		users:   users,
		log:     zerolog.Nop(),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	now := func() time.Time { return s.nowFunc() }
	s.refresh = NewRefreshManager(refreshRepo, cfg.GetRefreshTokenExpiry(), now)
	s.access = NewAccessTokens(NewHMACSigner(cfg.GetTokenSecret()), cfg.GetAccessTokenExpiry(), now)
	s.initRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Post(RouteLogin, s.LoginHandler())
	r.Post(RouteRegister, s.RegisterHandler())
	r.Post(RouteTelegram, s.TelegramHandler())
	r.Post(RouteVK, s.VKHandler())
	r.Post(RouteRefresh, s.RefreshHandler())
	r.With(s.requireAuth).Get(RouteMe, s.MeHandler())

	s.router = r
}
