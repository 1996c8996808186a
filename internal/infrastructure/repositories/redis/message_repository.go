package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	messageIndexKey = keyPrefix + "messages"
	authorCountsKey = keyPrefix + "messages:by_author"
)

func messageKey(id string) string {
	return keyPrefix + "message:" + id
}

type messageRecord struct {
	ID        string    `json:"id"`
	Content   string    `json:"content,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toMessageRecord(m *domain.Message) messageRecord {
	return messageRecord{
		ID:        string(m.ID),
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		AuthorID:  string(m.AuthorID),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (r messageRecord) toDomain() *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(r.ID),
		Content:   r.Content,
		ImageURL:  r.ImageURL,
		AuthorID:  domain.UserID(r.AuthorID),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RedisMessageRepository stores each message as JSON and indexes IDs in a
// sorted set scored by creation time in microseconds.
type RedisMessageRepository struct {
	client *redis.Client
}

func NewRedisMessageRepository(client *redis.Client) ports.MessageRepository {
	return &RedisMessageRepository{client: client}
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func (r *RedisMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(toMessageRecord(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, messageKey(string(msg.ID)), data, 0)
		pipe.ZAdd(ctx, messageIndexKey, redis.Z{Score: score(msg.CreatedAt), Member: string(msg.ID)})
		pipe.HIncrBy(ctx, authorCountsKey, string(msg.AuthorID), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store message in Redis: %w", err)
	}
	return nil
}

func (r *RedisMessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	data, err := r.client.Get(ctx, messageKey(string(id))).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message from Redis: %w", err)
	}

	var rec messageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *RedisMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	data, err := json.Marshal(toMessageRecord(msg))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ok, err := r.client.SetXX(ctx, messageKey(string(msg.ID)), data, redis.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to update message in Redis: %w", err)
	}
	if !ok {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *RedisMessageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	key := messageKey(string(id))

	// WATCH the message so two concurrent deletes cannot both decrement the counter
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return domain.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		var rec messageRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, messageIndexKey, string(id))
			pipe.HIncrBy(ctx, authorCountsKey, rec.AuthorID, -1)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrMessageNotFound) {
			return fmt.Errorf("failed to delete message from Redis: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to delete message %s: concurrent modification", id)
}

func (r *RedisMessageRepository) ListNewest(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	ids, err := r.client.ZRevRange(ctx, messageIndexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read message index: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Message{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	out := make([]*domain.Message, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between the index read and the fetch
			continue
		}
		var rec messageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, rec.toDomain())
	}
	return out, nil
}

func (r *RedisMessageRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.client.ZCard(ctx, messageIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *RedisMessageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	min := strconv.FormatInt(since.UnixMicro(), 10)
	n, err := r.client.ZCount(ctx, messageIndexKey, min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *RedisMessageRepository) CountByAuthor(ctx context.Context) (map[domain.UserID]int64, error) {
	raw, err := r.client.HGetAll(ctx, authorCountsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read author counters: %w", err)
	}

	counts := make(map[domain.UserID]int64, len(raw))
	for author, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt counter for %s: %w", author, err)
		}
		if n > 0 {
			counts[domain.UserID(author)] = n
		}
	}
	return counts, nil
}
