package repofake

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-miniapp-session/storage/telegramcloud"
)

var _ telegramcloud.CloudStorage = (*FakeCloudStorage)(nil)

// FakeCloudStorage behaves like Telegram CloudStorage: every callback fires on another
// goroutine after Latency.
type FakeCloudStorage struct {
	items map[string]string
	lock  sync.RWMutex

	Latency time.Duration
	Fail    bool
	Silent  bool // never invoke callbacks
}

func NewFakeCloudStorage() *FakeCloudStorage {
	return &FakeCloudStorage{items: make(map[string]string)}
}

func (cs *FakeCloudStorage) GetItem(key string, callback func(err error, value string)) {
	cs.later(func() {
		cs.lock.RLock()
		defer cs.lock.RUnlock()
		if cs.Fail {
			callback(ErrInjected, "")
			return
		}
		callback(nil, cs.items[key])
	})
}

func (cs *FakeCloudStorage) SetItem(key, value string, callback func(err error, stored bool)) {
	cs.later(func() {
		cs.lock.Lock()
		defer cs.lock.Unlock()
		if cs.Fail {
			callback(ErrInjected, false)
			return
		}
		cs.items[key] = value
		callback(nil, true)
	})
}

func (cs *FakeCloudStorage) RemoveItem(key string, callback func(err error, removed bool)) {
	cs.RemoveItems([]string{key}, callback)
}

func (cs *FakeCloudStorage) RemoveItems(keys []string, callback func(err error, removed bool)) {
	cs.later(func() {
		cs.lock.Lock()
		defer cs.lock.Unlock()
		if cs.Fail {
			callback(ErrInjected, false)
			return
		}
		for _, k := range keys {
			delete(cs.items, k)
		}
		callback(nil, true)
	})
}

func (cs *FakeCloudStorage) GetKeys(callback func(err error, keys []string)) {
	cs.later(func() {
		cs.lock.RLock()
		defer cs.lock.RUnlock()
		if cs.Fail {
			callback(ErrInjected, nil)
			return
		}
		keys := make([]string, 0, len(cs.items))
		for k := range cs.items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		callback(nil, keys)
	})
}

// Peek reads a stored value directly.
func (cs *FakeCloudStorage) Peek(key string) (string, bool) {
	cs.lock.RLock()
	defer cs.lock.RUnlock()
	v, ok := cs.items[key]
	return v, ok
}

func (cs *FakeCloudStorage) later(fn func()) {
	if cs.Silent {
		return
	}
	go func() {
		if cs.Latency > 0 {
			time.Sleep(cs.Latency)
		}
		fn()
	}()
}
