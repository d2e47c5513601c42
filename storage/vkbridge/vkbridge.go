// Package vkbridge adapts VK Mini App bridge storage to storage.Backend.
package vkbridge

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/storage"
)

// Bridge method names.
const (
	MethodStorageGet     = "VKWebAppStorageGet"
	MethodStorageSet     = "VKWebAppStorageSet"
	MethodStorageGetKeys = "VKWebAppStorageGetKeys"
)

const (
	MaxKeyLength   = 100
	MaxValueLength = 4096
	keysPageSize   = 1000
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Bridge sends one message-style call to the VK client.
type Bridge interface {
	Send(ctx context.Context, method string, params map[string]any) (map[string]any, error)
}

type Backend struct {
	bridge Bridge
}

var _ storage.Backend = (*Backend)(nil)

func New(bridge Bridge) *Backend {
	return &Backend{bridge: bridge}
}

func (b *Backend) Name() string { return "vk-bridge" }

type storageGetResponse struct {
	Keys []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"keys"`
}

type storageGetKeysResponse struct {
	Keys []string `json:"keys"`
}

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var resp storageGetResponse
	if err := b.call(ctx, MethodStorageGet, map[string]any{"keys": []string{key}}, &resp); err != nil {
		return "", false, errors.Wrapf(err, "[vkbridge.Get] %s", key)
	}
	for _, kv := range resp.Keys {
		if kv.Key == key && kv.Value != "" {
			return kv.Value, true, nil
		}
	}
	return "", false, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueLength {
		return errors.Wrapf(errors.ErrValueTooLarge, "[vkbridge.Set] %s is %d bytes", key, len(value))
	}
	return errors.Wrapf(b.call(ctx, MethodStorageSet, map[string]any{"key": key, "value": value}, nil), "[vkbridge.Set] %s", key)
}

// Remove writes an empty value; VK storage has no delete.
func (b *Backend) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return errors.Wrapf(b.call(ctx, MethodStorageSet, map[string]any{"key": key, "value": ""}, nil), "[vkbridge.Remove] %s", key)
}

func (b *Backend) Clear(ctx context.Context) error {
	var resp storageGetKeysResponse
	if err := b.call(ctx, MethodStorageGetKeys, map[string]any{"count": keysPageSize, "offset": 0}, &resp); err != nil {
		return errors.Wrapf(err, "[vkbridge.Clear] GetKeys")
	}
	for _, key := range resp.Keys {
		if err := b.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// call sends a bridge message and decodes the loosely typed response into out.
func (b *Backend) call(ctx context.Context, method string, params map[string]any, out any) error {
	resp, err := b.bridge.Send(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrapf(err, "marshal %s response", method)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	return nil
}

func validateKey(key string) error {
	if len(key) == 0 || len(key) > MaxKeyLength || !keyPattern.MatchString(key) {
		return errors.Wrapf(errors.ErrInvalidKey, "[vkbridge] %q", key)
	}
	return nil
}
