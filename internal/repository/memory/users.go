package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kirinyoku/seatbook/internal/domain"
	"github.com/kirinyoku/seatbook/internal/repository"
)

type userStore struct {
	mu      sync.RWMutex
	byID    map[int64]domain.User
	byEmail map[string]int64
	nextID  int64
	now     func() time.Time
}

func newUserStore(now func() time.Time) *userStore {
	return &userStore{
		byID:    make(map[int64]domain.User),
		byEmail: make(map[string]int64),
		now:     now,
	}
}

func (u *userStore) Create(ctx context.Context, username, email, passwordHash string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := u.byEmail[key]; ok {
		return nil, repository.ErrConflict
	}

	u.nextID++
	user := domain.User{
		ID:           u.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    u.now().UTC(),
	}
	u.byID[user.ID] = user
	u.byEmail[key] = user.ID

	return &user, nil
}

func (u *userStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	id, ok := u.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}

	user := u.byID[id]
	return &user, nil
}

func (u *userStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	return &user, nil
}
