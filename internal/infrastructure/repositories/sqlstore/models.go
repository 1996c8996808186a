package sqlstore

import (
	"time"

	"murmur/internal/core/domain"
)

type userRecord struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;size:254;not null"`
	Name         string `gorm:"size:100"`
	PasswordHash string
	Role         string `gorm:"size:16;not null"`
	IsActive     bool   `gorm:"not null"`
	IsGuest      bool   `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRecord) TableName() string { return "users" }

func toUserRecord(u *domain.User) *userRecord {
	return &userRecord{
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

func (r *userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:           domain.UserID(r.ID),
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		IsActive:     r.IsActive,
		IsGuest:      r.IsGuest,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

// messageRecord uses an autoincrement sequence as its primary key so that
// listing order is insertion order even if two rows share a timestamp.
type messageRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	Content   string    `gorm:"type:text"`
	ImageURL  string    `gorm:"size:2048"`
	AuthorID  string    `gorm:"index;size:36;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (messageRecord) TableName() string { return "messages" }

func toMessageRecord(m *domain.Message) *messageRecord {
	return &messageRecord{
		ID:        string(m.ID),
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		AuthorID:  string(m.AuthorID),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (r *messageRecord) toDomain() *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(r.ID),
		Content:   r.Content,
		ImageURL:  r.ImageURL,
		AuthorID:  domain.UserID(r.AuthorID),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}
