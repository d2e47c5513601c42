package platform

import (
	"net/url"
	"sync"
)

// Global handle names probed by the detector.
const (
	GlobalVKBridge       = "vkBridge"
	GlobalTelegramWebApp = "Telegram.WebApp"
)

// Environment exposes the volatile launch signals of the current page context.
// Any method may fail; callers treat a failure as "signal absent".
type Environment interface {
	URL() (*url.URL, error)
	Referrer() (string, error)
	HasGlobal(name string) (bool, error)
	TelegramInitData() (string, error)
	VKLaunchParams() (string, error)
}

// StaticEnvironment is an Environment whose signals are set explicitly. Signals can be
// changed at any time, which is how a slow SDK injecting its globals is simulated.
type StaticEnvironment struct {
	mu           sync.RWMutex
	rawURL       string
	referrer     string
	globals      map[string]bool
	initData     string
	launchParams string
}

var _ Environment = (*StaticEnvironment)(nil)

func NewStaticEnvironment(rawURL string) *StaticEnvironment {
	return &StaticEnvironment{rawURL: rawURL, globals: make(map[string]bool)}
}

func (e *StaticEnvironment) URL() (*url.URL, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return url.Parse(e.rawURL)
}

func (e *StaticEnvironment) Referrer() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.referrer, nil
}

func (e *StaticEnvironment) HasGlobal(name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.globals[name], nil
}

func (e *StaticEnvironment) TelegramInitData() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initData, nil
}

func (e *StaticEnvironment) VKLaunchParams() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.launchParams != "" {
		return e.launchParams, nil
	}
	// VK passes launch params in the page query string.
	u, err := url.Parse(e.rawURL)
	if err != nil {
		return "", err
	}
	if u.Query().Get("vk_user_id") == "" {
		return "", nil
	}
	return u.RawQuery, nil
}

func (e *StaticEnvironment) SetURL(rawURL string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rawURL = rawURL
}

func (e *StaticEnvironment) SetReferrer(referrer string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.referrer = referrer
}

func (e *StaticEnvironment) SetGlobal(name string, present bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globals[name] = present
}

func (e *StaticEnvironment) SetTelegramInitData(initData string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initData = initData
}

func (e *StaticEnvironment) SetVKLaunchParams(params string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.launchParams = params
}
