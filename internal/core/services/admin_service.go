package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	"murmur/pkg/utils"

	"go.uber.org/zap"
)

type AdminService struct {
	users      ports.UserRepository
	messages   ports.MessageRepository
	registry   *ConnectionRegistry
	terminator ports.ConnectionTerminator
	auth       AuthService
	logger     *zap.SugaredLogger
}

func NewAdminService(
	users ports.UserRepository,
	messages ports.MessageRepository,
	registry *ConnectionRegistry,
	terminator ports.ConnectionTerminator,
	auth AuthService,
	logger *zap.SugaredLogger,
) *AdminService {
	return &AdminService{
		users:      users,
		messages:   messages,
		registry:   registry,
		terminator: terminator,
		auth:       auth,
		logger:     logger,
	}
}

// RequireAdmin checks the stored role, not the one the caller presented.
func (a *AdminService) RequireAdmin(ctx context.Context, actor domain.Identity) error {
	user, err := a.users.GetByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return errForbidden("admin access required")
		}
		return storeError(err)
	}
	if user.Role != domain.RoleAdmin || !user.IsActive {
		return errForbidden("admin access required")
	}
	return nil
}

// ListUsers returns every account with its message count, newest first.
func (a *AdminService) ListUsers(ctx context.Context) ([]domain.UserSummary, error) {
	users, err := a.users.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	counts, err := a.messages.CountByAuthor(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })

	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, domain.UserSummary{User: u, MessageCount: counts[u.ID]})
	}
	return out, nil
}

// SetActive toggles an account. Deactivation closes the user's live connections.
func (a *AdminService) SetActive(ctx context.Context, actor domain.Identity, id domain.UserID, active bool) (*domain.User, error) {
	if actor.ID == id && !active {
		return nil, errForbidden("admins cannot deactivate themselves")
	}

	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}

	if user.IsActive != active {
		user.IsActive = active
		user.UpdatedAt = time.Now().UTC()
		if err := a.users.Update(ctx, user); err != nil {
			return nil, storeError(err)
		}
	}
	a.invalidate(id)

	if !active {
		a.disconnect(id)
	}

	a.logger.Infow("user status changed", "user_id", id, "is_active", active, "admin_id", actor.ID)
	return user, nil
}

// Promote grants ADMIN to the account registered under email.
func (a *AdminService) Promote(ctx context.Context, email string) (*domain.User, error) {
	user, err := a.users.GetByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return nil, storeError(err)
	}
	if user.IsGuest {
		return nil, errForbidden("guest accounts cannot be promoted")
	}
	if user.Role == domain.RoleAdmin {
		return user, nil
	}

	user.Role = domain.RoleAdmin
	user.UpdatedAt = time.Now().UTC()
	if err := a.users.Update(ctx, user); err != nil {
		return nil, storeError(err)
	}
	a.invalidate(user.ID)

	a.logger.Infow("user promoted to admin", "user_id", user.ID)
	return user, nil
}

func (a *AdminService) Stats(ctx context.Context) (*domain.Stats, error) {
	var (
		stats domain.Stats
		err   error
	)
	if stats.TotalUsers, err = a.users.Count(ctx, false); err != nil {
		return nil, storeError(err)
	}
	if stats.ActiveUsers, err = a.users.Count(ctx, true); err != nil {
		return nil, storeError(err)
	}
	if stats.TotalMessages, err = a.messages.Count(ctx); err != nil {
		return nil, storeError(err)
	}
	if stats.MessagesLastDay, err = a.messages.CountSince(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		return nil, storeError(err)
	}
	if a.registry != nil {
		stats.OnlineUsers = len(a.registry.ListOnline())
	}
	return &stats, nil
}

func (a *AdminService) disconnect(id domain.UserID) {
	if a.terminator == nil || a.registry == nil {
		return
	}
	for _, connID := range a.registry.ConnectionsOf(id) {
		a.terminator.Terminate(connID, "account deactivated")
	}
}

func (a *AdminService) invalidate(id domain.UserID) {
	if a.auth != nil {
		a.auth.Invalidate(id)
	}
}
