package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
)

const refreshTokenBytes = 32

// StoredRefreshToken is the server side record behind an opaque refresh token.
type StoredRefreshToken struct {
	Token  string
	UserID string
	Iat    time.Time
}

type RefreshRepo interface {
	Upsert(rt *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}

// RefreshManager issues single-use refresh tokens. A user holds at most one.
type RefreshManager struct {
	repo    RefreshRepo
	expiry  time.Duration
	nowFunc func() time.Time
}

func NewRefreshManager(repo RefreshRepo, expiry time.Duration, now func() time.Time) *RefreshManager {
	return &RefreshManager{repo: repo, expiry: expiry, nowFunc: now}
}

// Create replaces the user's refresh token with a new one.
func (m *RefreshManager) Create(userID string) (string, error) {
	if existing, err := m.repo.GetByUserID(userID); err == nil && existing != nil {
		if err := m.repo.Delete(existing.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    m.nowFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}
	return tokenStr, nil
}

// Consume redeems a refresh token exactly once and returns its user id.
func (m *RefreshManager) Consume(token string) (string, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return "", errors.Wrapf(errors.ErrAuthInvalid, "[RefreshManager.Consume] unknown refresh token")
	}
	if err := m.repo.Delete(token); err != nil {
		return "", errors.Wrapf(errors.ErrAuthInvalid, "[RefreshManager.Consume] already used")
	}
	if m.IsExpired(rt) {
		return "", errors.Wrapf(errors.ErrAuthExpired, "[RefreshManager.Consume] refresh token expired")
	}
	return rt.UserID, nil
}

func (m *RefreshManager) IsExpired(rt *StoredRefreshToken) bool {
	return m.nowFunc().Sub(rt.Iat) > m.expiry
}
