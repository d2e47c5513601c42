package platform

import "sync"

// Session flag keys.
const (
	FlagIsVK         = "platform_is_vk"
	FlagJustLoggedIn = "just_logged_in"
)

// SessionFlags is short-lived state that survives in-app navigation but not a relaunch.
type SessionFlags interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Delete(key string)
}

type memoryFlags struct {
	mu    sync.RWMutex
	flags map[string]string
}

func NewMemoryFlags() SessionFlags {
	return &memoryFlags{flags: make(map[string]string)}
}

func (m *memoryFlags) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.flags[key]
	return v, ok
}

func (m *memoryFlags) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = value
}

func (m *memoryFlags) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, key)
}
