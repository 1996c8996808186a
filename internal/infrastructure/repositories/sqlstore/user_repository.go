package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"gorm.io/gorm"
)

type SQLUserRepository struct {
	db *gorm.DB
}

func NewSQLUserRepository(db *gorm.DB) ports.UserRepository {
	return &SQLUserRepository{db: db}
}

func (r *SQLUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(toUserRecord(user)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *SQLUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.first(ctx, "id = ?", string(id))
}

func (r *SQLUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *SQLUserRepository) first(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var rec userRecord
	err := r.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *SQLUserRepository) Update(ctx context.Context, user *domain.User) error {
	rec := toUserRecord(user)
	res := r.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"email":         rec.Email,
		"name":          rec.Name,
		"password_hash": rec.PasswordHash,
		"role":          rec.Role,
		"is_active":     rec.IsActive,
		"is_guest":      rec.IsGuest,
		"updated_at":    rec.UpdatedAt,
	})
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return domain.ErrEmailTaken
	}
	if res.Error != nil {
		return fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *SQLUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	var recs []userRecord
	if err := r.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*domain.User, 0, len(recs))
	for i := range recs {
		users = append(users, recs[i].toDomain())
	}
	return users, nil
}

func (r *SQLUserRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&userRecord{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
