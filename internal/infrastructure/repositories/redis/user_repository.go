package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const usersKey = keyPrefix + "users"

func userKey(id string) string {
	return keyPrefix + "user:" + id
}

func emailKey(email string) string {
	return keyPrefix + "user:email:" + email
}

type userRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"isActive"`
	IsGuest      bool      `json:"isGuest"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toUserRecord(u *domain.User) userRecord {
	return userRecord{
		ID:           string(u.ID),
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		IsActive:     u.IsActive,
		IsGuest:      u.IsGuest,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(r.ID),
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		IsActive:     r.IsActive,
		IsGuest:      r.IsGuest,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// RedisUserRepository keeps users as JSON plus an email -> id key that
// enforces uniqueness through SETNX.
type RedisUserRepository struct {
	client *redis.Client
}

func NewRedisUserRepository(client *redis.Client) ports.UserRepository {
	return &RedisUserRepository{client: client}
}

func (r *RedisUserRepository) Create(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(toUserRecord(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	claimed, err := r.client.SetNX(ctx, emailKey(user.Email), string(user.ID), 0).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve email: %w", err)
	}
	if !claimed {
		return domain.ErrEmailTaken
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, userKey(string(user.ID)), data, 0)
		pipe.SAdd(ctx, usersKey, string(user.ID))
		return nil
	})
	if err != nil {
		r.client.Del(ctx, emailKey(user.Email))
		return fmt.Errorf("failed to store user in Redis: %w", err)
	}
	return nil
}

func (r *RedisUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	data, err := r.client.Get(ctx, userKey(string(id))).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *RedisUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	id, err := r.client.Get(ctx, emailKey(email)).Result()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve email: %w", err)
	}
	return r.GetByID(ctx, domain.UserID(id))
}

func (r *RedisUserRepository) Update(ctx context.Context, user *domain.User) error {
	current, err := r.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}

	if current.Email != user.Email {
		claimed, err := r.client.SetNX(ctx, emailKey(user.Email), string(user.ID), 0).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve email: %w", err)
		}
		if !claimed {
			return domain.ErrEmailTaken
		}
		r.client.Del(ctx, emailKey(current.Email))
	}

	data, err := json.Marshal(toUserRecord(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	ok, err := r.client.SetXX(ctx, userKey(string(user.ID)), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to update user in Redis: %w", err)
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *RedisUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	ids, err := r.client.SMembers(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.User{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	users := make([]*domain.User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec userRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		users = append(users, rec.toDomain())
	}
	return users, nil
}

func (r *RedisUserRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	if !activeOnly {
		return r.client.SCard(ctx, usersKey).Result()
	}

	users, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, u := range users {
		if u.IsActive {
			n++
		}
	}
	return n, nil
}
