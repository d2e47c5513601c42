package repofake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-miniapp-session/storage/vkbridge"
)

var _ vkbridge.Bridge = (*FakeBridge)(nil)

// FakeBridge answers the VK Bridge storage methods from memory and records every call.
type FakeBridge struct {
	items map[string]string
	calls []string
	lock  sync.Mutex

	Latency time.Duration
	Fail    bool
}

func NewFakeBridge() *FakeBridge {
	return &FakeBridge{items: make(map[string]string)}
}

func (fb *FakeBridge) Send(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	if fb.Latency > 0 {
		select {
		case <-time.After(fb.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fb.lock.Lock()
	defer fb.lock.Unlock()
	fb.calls = append(fb.calls, method)
	if fb.Fail {
		return nil, ErrInjected
	}

	switch method {
	case vkbridge.MethodStorageGet:
		keys, _ := params["keys"].([]string)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, map[string]any{"key": k, "value": fb.items[k]})
		}
		return map[string]any{"keys": out}, nil

	case vkbridge.MethodStorageSet:
		key, _ := params["key"].(string)
		value, _ := params["value"].(string)
		if value == "" {
			delete(fb.items, key)
		} else {
			fb.items[key] = value
		}
		return map[string]any{"result": true}, nil

	case vkbridge.MethodStorageGetKeys:
		keys := make([]string, 0, len(fb.items))
		for k := range fb.items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return map[string]any{"keys": keys}, nil
	}
	return nil, fmt.Errorf("unsupported bridge method %s", method)
}

func (fb *FakeBridge) Peek(key string) (string, bool) {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	v, ok := fb.items[key]
	return v, ok
}

func (fb *FakeBridge) Calls() []string {
	fb.lock.Lock()
	defer fb.lock.Unlock()
	return append([]string(nil), fb.calls...)
}
