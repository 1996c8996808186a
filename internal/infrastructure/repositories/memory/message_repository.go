package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
)

// MemoryMessageRepository keeps messages in a slice ordered by CreatedAt.
type MemoryMessageRepository struct {
	mu      sync.RWMutex
	byID    map[domain.MessageID]*domain.Message
	ordered []*domain.Message
}

func NewMemoryMessageRepository() ports.MessageRepository {
	return &MemoryMessageRepository{
		byID: make(map[domain.MessageID]*domain.Message),
	}
}

func (r *MemoryMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[msg.ID]; exists {
		return fmt.Errorf("message already exists: %s", msg.ID)
	}

	stored := msg.Clone()
	stored.User = domain.Author{}
	r.byID[msg.ID] = stored

	// messages normally arrive in order, so this is an append
	i := sort.Search(len(r.ordered), func(i int) bool {
		return r.ordered[i].CreatedAt.After(stored.CreatedAt)
	})
	r.ordered = append(r.ordered, nil)
	copy(r.ordered[i+1:], r.ordered[i:])
	r.ordered[i] = stored
	return nil
}

func (r *MemoryMessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, exists := r.byID[id]
	if !exists {
		return nil, domain.ErrMessageNotFound
	}
	return msg.Clone(), nil
}

func (r *MemoryMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.byID[msg.ID]
	if !exists {
		return domain.ErrMessageNotFound
	}
	stored.Content = msg.Content
	stored.ImageURL = msg.ImageURL
	stored.UpdatedAt = msg.UpdatedAt
	return nil
}

func (r *MemoryMessageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return domain.ErrMessageNotFound
	}
	delete(r.byID, id)
	for i, m := range r.ordered {
		if m.ID == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryMessageRepository) ListNewest(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	out := make([]*domain.Message, 0, limit)
	for i := len(r.ordered) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.ordered[i].Clone())
	}
	return out, nil
}

func (r *MemoryMessageRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.ordered)), nil
}

func (r *MemoryMessageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := sort.Search(len(r.ordered), func(i int) bool {
		return !r.ordered[i].CreatedAt.Before(since)
	})
	return int64(len(r.ordered) - i), nil
}

func (r *MemoryMessageRepository) CountByAuthor(ctx context.Context) (map[domain.UserID]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.UserID]int64)
	for _, m := range r.ordered {
		counts[m.AuthorID]++
	}
	return counts, nil
}
