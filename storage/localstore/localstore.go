// Package localstore is the web backend: a device-local key/value file, the counterpart of
// browser local storage. Operations are synchronous; the storage.Backend methods only take
// a context to satisfy the interface.
package localstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/jrsteele09/go-miniapp-session/storage"
)

const (
	fileName  = "localstorage.json"
	nonceSize = 24
)

type fileContents struct {
	DeviceID string            `json:"device_id"`
	Items    map[string]string `json:"items"`
}

type Store struct {
	path    string
	sealKey *[32]byte
	lock    sync.RWMutex
	data    fileContents
}

var _ storage.Backend = (*Store)(nil)

type Option func(*Store)

// WithSealKey encrypts the file at rest with a key derived from passphrase.
func WithSealKey(passphrase string) Option {
	return func(s *Store) {
		if passphrase == "" {
			return
		}
		key := sha256.Sum256([]byte(passphrase))
		s.sealKey = &key
	}
}

// Open loads (or creates) the store in folder.
func Open(folder string, options ...Option) (*Store, error) {
	s := &Store{path: filepath.Join(folder, fileName)}
	for _, opt := range options {
		opt(s)
	}

	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[localstore.Open] MkdirAll")
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	if s.data.DeviceID == "" {
		s.data.DeviceID = uuid.New().String()
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Name() string { return "local" }

// DeviceID namespaces the stored values; it is generated once per data folder.
func (s *Store) DeviceID() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.data.DeviceID
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.data.Items[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data.Items[key] = value
	return s.persist()
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.data.Items[key]; !ok {
		return nil
	}
	delete(s.data.Items, key)
	return s.persist()
}

func (s *Store) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data.Items = make(map[string]string)
	return s.persist()
}

func (s *Store) load() error {
	s.data = fileContents{Items: make(map[string]string)}

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[localstore.load] ReadFile")
	}

	if s.sealKey != nil {
		if raw, err = s.open(raw); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return errors.Wrap(err, "[localstore.load] Unmarshal")
	}
	if s.data.Items == nil {
		s.data.Items = make(map[string]string)
	}
	return nil
}

// persist writes the whole file with the temp-file-and-rename pattern. Caller holds lock.
func (s *Store) persist() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return errors.Wrap(err, "[localstore.persist] Marshal")
	}
	if s.sealKey != nil {
		if raw, err = s.seal(raw); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "[localstore.persist] WriteFile")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "[localstore.persist] Rename")
	}
	return nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "[localstore.seal] rand.Read")
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.sealKey), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("[localstore.open] sealed file too short (%d bytes)", len(sealed))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.sealKey)
	if !ok {
		return nil, errors.New("[localstore.open] cannot decrypt storage file")
	}
	return plain, nil
}
