package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/jrsteele09/go-miniapp-session/apiclient"
	"github.com/jrsteele09/go-miniapp-session/internal/config"
	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/platform"
)

// Strategy is the platform specific half of a login: where credential material comes
// from, how it is exchanged and which platform id a user is bound to.
type Strategy interface {
	Platform() platform.Platform
	// Credential waits, bounded, for credential material. stillCurrent is polled on every
	// tick; when it turns false the wait ends with ErrPlatformChanged. No material within
	// the bound is errors.ErrCredentialAbsent.
	Credential(ctx context.Context, stillCurrent func() bool) (string, error)
	// CurrentUserID is the platform user id readable right now without network calls.
	CurrentUserID() string
	Exchange(ctx context.Context, credential, currentToken string) (apiclient.AuthResponse, error)
	// BoundID is the platform id of u, "" when u has none for this platform.
	BoundID(u *apiclient.User) string
}

var (
	_ Strategy = (*TelegramStrategy)(nil)
	_ Strategy = (*VKStrategy)(nil)
	_ Strategy = (*WebStrategy)(nil)
)

// TelegramStrategy polls for init data, which the Telegram SDK may inject after the page
// has started.
type TelegramStrategy struct {
	env    platform.Environment
	client *apiclient.Client
	wait   time.Duration
	poll   time.Duration
}

func NewTelegramStrategy(env platform.Environment, client *apiclient.Client, cfg config.AuthConfig) *TelegramStrategy {
	return &TelegramStrategy{
		env:    env,
		client: client,
		wait:   cfg.GetTelegramCredentialWait(),
		poll:   cfg.GetPollInterval(),
	}
}

func (s *TelegramStrategy) Platform() platform.Platform { return platform.Telegram }

func (s *TelegramStrategy) Credential(ctx context.Context, stillCurrent func() bool) (string, error) {
	deadline := time.NewTimer(s.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if initData := platform.ReadTelegramInitData(s.env); platform.ValidTelegramInitData(initData) {
			return initData, nil
		}
		if !stillCurrent() {
			return "", ErrPlatformChanged
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return "", errors.Wrapf(errors.ErrCredentialAbsent, "no init data after %s", s.wait)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *TelegramStrategy) CurrentUserID() string {
	return platform.TelegramUserID(platform.ReadTelegramInitData(s.env))
}

func (s *TelegramStrategy) Exchange(ctx context.Context, credential, currentToken string) (apiclient.AuthResponse, error) {
	return s.client.TelegramLogin(ctx, credential, currentToken)
}

func (s *TelegramStrategy) BoundID(u *apiclient.User) string {
	return formatID(u, func(u *apiclient.User) *int64 { return u.TelegramID })
}

// NameSource returns the VK user's display name, typically via VKWebAppGetUserInfo.
type NameSource func(ctx context.Context) (firstName, lastName string, err error)

// VKStrategy reads launch params immediately and retries once after a short delay.
type VKStrategy struct {
	env        platform.Environment
	client     *apiclient.Client
	retryDelay time.Duration
	names      NameSource
}

type VKStrategyOption func(*VKStrategy)

func WithNameSource(names NameSource) VKStrategyOption {
	return func(s *VKStrategy) {
		s.names = names
	}
}

func NewVKStrategy(env platform.Environment, client *apiclient.Client, cfg config.AuthConfig, options ...VKStrategyOption) *VKStrategy {
	s := &VKStrategy{
		env:        env,
		client:     client,
		retryDelay: cfg.GetVKRetryDelay(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *VKStrategy) Platform() platform.Platform { return platform.VK }

func (s *VKStrategy) Credential(ctx context.Context, stillCurrent func() bool) (string, error) {
	if params := platform.ReadVKLaunchParams(s.env); platform.ValidVKLaunchParams(params) {
		return params, nil
	}

	retry := time.NewTimer(s.retryDelay)
	defer retry.Stop()
	select {
	case <-retry.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if !stillCurrent() {
		return "", ErrPlatformChanged
	}
	if params := platform.ReadVKLaunchParams(s.env); platform.ValidVKLaunchParams(params) {
		return params, nil
	}
	return "", errors.Wrapf(errors.ErrCredentialAbsent, "no launch params after %s", s.retryDelay)
}

func (s *VKStrategy) CurrentUserID() string {
	return platform.VKUserID(platform.ReadVKLaunchParams(s.env))
}

func (s *VKStrategy) Exchange(ctx context.Context, credential, currentToken string) (apiclient.AuthResponse, error) {
	var first, last string
	if s.names != nil {
		var err error
		if first, last, err = s.names(ctx); err != nil {
			first, last = "", ""
		}
	}
	return s.client.VKLogin(ctx, credential, currentToken, first, last)
}

func (s *VKStrategy) BoundID(u *apiclient.User) string {
	return formatID(u, func(u *apiclient.User) *int64 { return u.VKID })
}

// WebStrategy never logs in automatically; on the web the orchestrator only validates a
// stored token.
type WebStrategy struct{}

func NewWebStrategy() *WebStrategy { return &WebStrategy{} }

func (s *WebStrategy) Platform() platform.Platform { return platform.Web }

func (s *WebStrategy) Credential(context.Context, func() bool) (string, error) {
	return "", ErrNoAutoLogin
}

func (s *WebStrategy) CurrentUserID() string { return "" }

func (s *WebStrategy) Exchange(context.Context, string, string) (apiclient.AuthResponse, error) {
	return apiclient.AuthResponse{}, ErrNoAutoLogin
}

func (s *WebStrategy) BoundID(*apiclient.User) string { return "" }

func formatID(u *apiclient.User, field func(*apiclient.User) *int64) string {
	if u == nil {
		return ""
	}
	id := field(u)
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
