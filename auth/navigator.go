package auth

import "sync"

// Navigator is the router the orchestrators redirect through.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// MemoryNavigator records navigations instead of performing them.
type MemoryNavigator struct {
	mu      sync.RWMutex
	path    string
	history []string
}

var _ Navigator = (*MemoryNavigator)(nil)

func NewMemoryNavigator(path string) *MemoryNavigator {
	return &MemoryNavigator{path: path}
}

func (n *MemoryNavigator) CurrentPath() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.path
}

func (n *MemoryNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.history = append(n.history, path)
}

// History lists every Navigate call in order.
func (n *MemoryNavigator) History() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.history...)
}
