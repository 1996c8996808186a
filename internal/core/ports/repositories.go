package ports

import (
	"context"
	"time"

	"murmur/internal/core/domain"
)

// UserRepository stores accounts. Emails are stored normalized and unique.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context) ([]*domain.User, error)
	Count(ctx context.Context, activeOnly bool) (int64, error)
}

// MessageRepository is the durable message store. ListNewest pages by
// CreatedAt descending; callers reverse for display.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error
	Delete(ctx context.Context, id domain.MessageID) error
	ListNewest(ctx context.Context, offset, limit int) ([]*domain.Message, error)
	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountByAuthor(ctx context.Context) (map[domain.UserID]int64, error)
}

// HealthChecker is implemented by stores that can report connectivity.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
