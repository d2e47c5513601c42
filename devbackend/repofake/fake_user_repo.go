package repofake

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jrsteele09/go-miniapp-session/devbackend"
	"github.com/jrsteele09/go-miniapp-session/internal/errors"
)

var _ devbackend.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users       map[string]*devbackend.User
	emailIDs    map[string]string // email to user id
	telegramIDs map[int64]string
	vkIDs       map[int64]string
	lock        sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:       make(map[string]*devbackend.User),
		emailIDs:    make(map[string]string),
		telegramIDs: make(map[int64]string),
		vkIDs:       make(map[int64]string),
	}
}

func (ur *FakeUserRepo) Upsert(user *devbackend.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	stored := *user
	ur.users[user.ID] = &stored
	if user.Email != "" {
		ur.emailIDs[user.Email] = user.ID
	}
	if user.TelegramID != nil {
		ur.telegramIDs[*user.TelegramID] = user.ID
	}
	if user.VKID != nil {
		ur.vkIDs[*user.VKID] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByEmail(email string) (*devbackend.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.byID(ur.emailIDs[email])
}

func (ur *FakeUserRepo) GetByID(id string) (*devbackend.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.byID(id)
}

func (ur *FakeUserRepo) GetByTelegramID(id int64) (*devbackend.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.byID(ur.telegramIDs[id])
}

func (ur *FakeUserRepo) GetByVKID(id int64) (*devbackend.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return ur.byID(ur.vkIDs[id])
}

// byID returns a copy so callers never mutate the stored user. Caller holds lock.
func (ur *FakeUserRepo) byID(id string) (*devbackend.User, error) {
	u, ok := ur.users[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	out := *u
	return &out, nil
}
