package repofake

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-miniapp-session/storage"
)

var _ storage.Backend = (*FakeBackend)(nil)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected storage failure")

// FakeBackend is an in-memory durable backend with failure and latency injection.
type FakeBackend struct {
	name  string
	items map[string]string
	lock  sync.RWMutex

	fail  bool
	delay time.Duration

	gets int
	sets int
}

func NewFakeBackend(name string) *FakeBackend {
	return &FakeBackend{name: name, items: make(map[string]string)}
}

func (fb *FakeBackend) Name() string { return fb.name }

// SetFailing makes every call fail.
func (fb *FakeBackend) SetFailing(fail bool) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.fail = fail
}

// SetDelay adds latency to every call.
func (fb *FakeBackend) SetDelay(d time.Duration) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.delay = d
}

func (fb *FakeBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := fb.pause(ctx); err != nil {
		return "", false, err
	}
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.gets++
	if fb.fail {
		return "", false, ErrInjected
	}
	v, ok := fb.items[key]
	return v, ok, nil
}

func (fb *FakeBackend) Set(ctx context.Context, key, value string) error {
	if err := fb.pause(ctx); err != nil {
		return err
	}
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.sets++
	if fb.fail {
		return ErrInjected
	}
	fb.items[key] = value
	return nil
}

func (fb *FakeBackend) Remove(ctx context.Context, key string) error {
	if err := fb.pause(ctx); err != nil {
		return err
	}
	fb.lock.Lock()
	defer fb.lock.Unlock()
	if fb.fail {
		return ErrInjected
	}
	delete(fb.items, key)
	return nil
}

func (fb *FakeBackend) Clear(ctx context.Context) error {
	if err := fb.pause(ctx); err != nil {
		return err
	}
	fb.lock.Lock()
	defer fb.lock.Unlock()
	if fb.fail {
		return ErrInjected
	}
	fb.items = make(map[string]string)
	return nil
}

// Peek reads the durable value directly.
func (fb *FakeBackend) Peek(key string) (string, bool) {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	v, ok := fb.items[key]
	return v, ok
}

// Put seeds the durable value directly.
func (fb *FakeBackend) Put(key, value string) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.items[key] = value
}

func (fb *FakeBackend) Keys() []string {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	keys := make([]string, 0, len(fb.items))
	for k := range fb.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (fb *FakeBackend) Calls() (gets, sets int) {
	fb.lock.RLock()
	defer fb.lock.RUnlock()
	return fb.gets, fb.sets
}

func (fb *FakeBackend) pause(ctx context.Context) error {
	fb.lock.RLock()
	d := fb.delay
	fb.lock.RUnlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
