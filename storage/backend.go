package storage

import (
	"context"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/platform"
)

// Logical storage keys.
const (
	KeyToken          = "token"
	KeyRefreshToken   = "refresh_token"
	KeyLanguage       = "language"
	KeyTheme          = "theme"
	KeyCurrency       = "currency"
	KeyPlatformUserID = "platform_user_id"
)

// ImportantKeys are warmed into the synchronous cache at start.
var ImportantKeys = []string{KeyToken, KeyRefreshToken, KeyLanguage, KeyTheme, KeyCurrency, KeyPlatformUserID}

// Backend is the durable tier. Each platform's backend is private to that platform's user,
// the web backend is private to the device.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Backends holds the candidate backend for each platform.
type Backends struct {
	Web      Backend
	Telegram Backend
	VK       Backend
}

// ForPlatform selects the single backend active for p.
func (b Backends) ForPlatform(p platform.Platform) (Backend, error) {
	var backend Backend
	switch p {
	case platform.Telegram:
		backend = b.Telegram
	case platform.VK:
		backend = b.VK
	default:
		backend = b.Web
	}
	if backend == nil {
		return nil, errors.Wrapf(errors.ErrNoBackend, "[Backends.ForPlatform] %s", p)
	}
	return backend, nil
}
