package memory

import (
	"context"
	"sync"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
)

type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[domain.UserID]*domain.User
	byEmail map[string]domain.UserID
}

func NewMemoryUserRepository() ports.UserRepository {
	return &MemoryUserRepository{
		users:   make(map[domain.UserID]*domain.User),
		byEmail: make(map[string]domain.UserID),
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[user.Email]; taken {
		return domain.ErrEmailTaken
	}

	stored := *user
	r.users[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, domain.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	id, exists := r.byEmail[email]
	r.mu.RUnlock()

	if !exists {
		return nil, domain.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.users[user.ID]
	if !exists {
		return domain.ErrUserNotFound
	}
	if current.Email != user.Email {
		if _, taken := r.byEmail[user.Email]; taken {
			return domain.ErrEmailTaken
		}
		delete(r.byEmail, current.Email)
		r.byEmail[user.Email] = user.ID
	}

	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.users))
	for _, user := range r.users {
		u := *user
		out = append(out, &u)
	}
	return out, nil
}

func (r *MemoryUserRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !activeOnly {
		return int64(len(r.users)), nil
	}
	var n int64
	for _, user := range r.users {
		if user.IsActive {
			n++
		}
	}
	return n, nil
}
