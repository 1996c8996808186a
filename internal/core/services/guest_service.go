package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	apperrors "murmur/pkg/errors"
	"murmur/pkg/utils"
	"murmur/pkg/validation"

	"go.uber.org/zap"
)

type GuestConfig struct {
	APIKey       string
	DefaultLimit int
	MaxLimit     int
}

// GuestService serves the embeddable widget: posting under a placeholder
// account keyed by email and reading recent history.
type GuestService struct {
	users  ports.UserRepository
	chat   *ChatService
	cfg    GuestConfig
	logger *zap.SugaredLogger
}

func NewGuestService(users ports.UserRepository, chat *ChatService, cfg GuestConfig, logger *zap.SugaredLogger) *GuestService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &GuestService{users: users, chat: chat, cfg: cfg, logger: logger}
}

// Authorize checks a presented widget key in constant time.
func (g *GuestService) Authorize(key string) error {
	if g.cfg.APIKey == "" {
		return apperrors.NewServiceUnavailableError("widget is not configured")
	}
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(g.cfg.APIKey)) != 1 {
		return apperrors.NewUnauthorizedError("invalid api key")
	}
	return nil
}

// Post publishes content as the guest account for email, creating it on first use.
func (g *GuestService) Post(ctx context.Context, email, content string) (*domain.Message, error) {
	email = utils.NormalizeEmail(email)
	content = strings.TrimSpace(content)
	if email == "" || content == "" {
		return nil, errInvalid(nil, "content and guestEmail are required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, errInvalid(err, err.Error())
	}

	user, err := g.guestAccount(ctx, email)
	if err != nil {
		return nil, err
	}

	identity := user.Identity()
	identity.Role = domain.RoleUser
	return g.chat.Post(ctx, identity, domain.MessageDraft{Content: content})
}

// Recent returns up to limit newest messages, ascending. limit <= 0 means the default.
func (g *GuestService) Recent(ctx context.Context, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = g.cfg.DefaultLimit
	}
	if limit > g.cfg.MaxLimit {
		limit = g.cfg.MaxLimit
	}
	return g.chat.Recent(ctx, limit)
}

func (g *GuestService) guestAccount(ctx context.Context, email string) (*domain.User, error) {
	user, err := g.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		now := time.Now().UTC()
		user = &domain.User{
			ID:        domain.UserID(utils.NewID()),
			Email:     email,
			Name:      domain.GuestName,
			Role:      domain.RoleUser,
			IsActive:  true,
			IsGuest:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = g.users.Create(ctx, user)
		if errors.Is(err, domain.ErrEmailTaken) {
			// lost a race with another first post from the same email
			user, err = g.users.GetByEmail(ctx, email)
		} else if err == nil {
			g.logger.Infow("guest account created", "user_id", user.ID, "email", utils.MaskEmail(email))
		}
	}
	if err != nil {
		return nil, storeError(err)
	}

	if !user.IsGuest {
		return nil, errForbidden("email belongs to a registered account")
	}
	if !user.IsActive {
		return nil, errForbidden("guest account is blocked")
	}
	return user, nil
}
