// Package telegramcloud adapts Telegram Mini App CloudStorage to storage.Backend.
//
// CloudStorage is callback based; this package turns every call into a blocking,
// context-bounded call so the callback style stays at this boundary.
package telegramcloud

import (
	"context"
	"regexp"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/storage"
)

const (
	MaxKeyLength   = 128
	MaxValueLength = 4096
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CloudStorage mirrors the Telegram WebApp.CloudStorage API.
type CloudStorage interface {
	GetItem(key string, callback func(err error, value string))
	SetItem(key, value string, callback func(err error, stored bool))
	RemoveItem(key string, callback func(err error, removed bool))
	RemoveItems(keys []string, callback func(err error, removed bool))
	GetKeys(callback func(err error, keys []string))
}

type Backend struct {
	cloud CloudStorage
}

var _ storage.Backend = (*Backend)(nil)

func New(cloud CloudStorage) *Backend {
	return &Backend{cloud: cloud}
}

func (b *Backend) Name() string { return "telegram-cloud" }

func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	type result struct {
		value string
		err   error
	}
	res, err := await(ctx, func(done chan<- result) {
		b.cloud.GetItem(key, func(err error, value string) { done <- result{value, err} })
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "[telegramcloud.Get] %s", key)
	}
	if res.err != nil {
		return "", false, errors.Wrapf(res.err, "[telegramcloud.Get] %s", key)
	}
	// CloudStorage reports a missing key as an empty string.
	if res.value == "" {
		return "", false, nil
	}
	return res.value, true, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueLength {
		return errors.Wrapf(errors.ErrValueTooLarge, "[telegramcloud.Set] %s is %d bytes", key, len(value))
	}
	res, err := await(ctx, func(done chan<- error) {
		b.cloud.SetItem(key, value, func(err error, _ bool) { done <- err })
	})
	if err != nil {
		return errors.Wrapf(err, "[telegramcloud.Set] %s", key)
	}
	return errors.Wrapf(res, "[telegramcloud.Set] %s", key)
}

func (b *Backend) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	res, err := await(ctx, func(done chan<- error) {
		b.cloud.RemoveItem(key, func(err error, _ bool) { done <- err })
	})
	if err != nil {
		return errors.Wrapf(err, "[telegramcloud.Remove] %s", key)
	}
	return errors.Wrapf(res, "[telegramcloud.Remove] %s", key)
}

func (b *Backend) Clear(ctx context.Context) error {
	type result struct {
		keys []string
		err  error
	}
	keys, err := await(ctx, func(done chan<- result) {
		b.cloud.GetKeys(func(err error, keys []string) { done <- result{keys, err} })
	})
	if err != nil {
		return errors.Wrapf(err, "[telegramcloud.Clear] GetKeys")
	}
	if keys.err != nil {
		return errors.Wrapf(keys.err, "[telegramcloud.Clear] GetKeys")
	}
	if len(keys.keys) == 0 {
		return nil
	}
	res, err := await(ctx, func(done chan<- error) {
		b.cloud.RemoveItems(keys.keys, func(err error, _ bool) { done <- err })
	})
	if err != nil {
		return errors.Wrapf(err, "[telegramcloud.Clear] RemoveItems")
	}
	return errors.Wrapf(res, "[telegramcloud.Clear] RemoveItems")
}

// await runs call and waits for its callback or ctx. The channel is buffered so a late
// callback never blocks the SDK.
func await[T any](ctx context.Context, call func(done chan<- T)) (T, error) {
	done := make(chan T, 1)
	call(done)
	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrapf(errors.ErrStorageTimeout, "%v", ctx.Err())
	}
}

func validateKey(key string) error {
	if len(key) == 0 || len(key) > MaxKeyLength || !keyPattern.MatchString(key) {
		return errors.Wrapf(errors.ErrInvalidKey, "[telegramcloud] %q", key)
	}
	return nil
}
