package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"gorm.io/gorm"
)

type SQLMessageRepository struct {
	db *gorm.DB
}

func NewSQLMessageRepository(db *gorm.DB) ports.MessageRepository {
	return &SQLMessageRepository{db: db}
}

func (r *SQLMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if err := r.db.WithContext(ctx).Create(toMessageRecord(msg)).Error; err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (r *SQLMessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var rec messageRecord
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *SQLMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	res := r.db.WithContext(ctx).Model(&messageRecord{}).Where("id = ?", string(msg.ID)).Updates(map[string]interface{}{
		"content":    msg.Content,
		"image_url":  msg.ImageURL,
		"updated_at": msg.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *SQLMessageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	res := r.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&messageRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *SQLMessageRepository) ListNewest(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		return []*domain.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	var recs []messageRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("seq DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	out := make([]*domain.Message, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toDomain())
	}
	return out, nil
}

func (r *SQLMessageRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&messageRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *SQLMessageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&messageRecord{}).
		Where("created_at >= ?", since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func (r *SQLMessageRepository) CountByAuthor(ctx context.Context) (map[domain.UserID]int64, error) {
	var rows []struct {
		AuthorID string
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&messageRecord{}).
		Select("author_id, COUNT(*) AS total").
		Group("author_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by author: %w", err)
	}

	counts := make(map[domain.UserID]int64, len(rows))
	for _, row := range rows {
		counts[domain.UserID(row.AuthorID)] = row.Total
	}
	return counts, nil
}
