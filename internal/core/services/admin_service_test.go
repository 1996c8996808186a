package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/infrastructure/repositories/memory"
	apperrors "murmur/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	*chatFixture
	admins     *AdminService
	auth       AuthService
	terminator *recordingTerminator
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	f := newChatFixture(t, memory.NewMemoryMessageRepository())
	auth := newTestAuth(t, f.users, AuthConfig{IdentityCacheTTL: time.Minute})
	term := &recordingTerminator{}
	return &adminFixture{
		chatFixture: f,
		admins:      NewAdminService(f.users, f.chat.messages, f.registry, term, auth, testLogger),
		auth:        auth,
		terminator:  term,
	}
}

func TestAdminService_RequireAdmin(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.admins.RequireAdmin(ctx, f.admin))

	err := f.admins.RequireAdmin(ctx, f.alice)
	requireCode(t, err, apperrors.ErrCodeForbidden, http.StatusForbidden)

	// a presented role means nothing without the stored one
	forged := f.alice
	forged.Role = domain.RoleAdmin
	requireCode(t, f.admins.RequireAdmin(ctx, forged), apperrors.ErrCodeForbidden, http.StatusForbidden)

	unknown := identity("ghost", "ghost@example.com", domain.RoleAdmin)
	requireCode(t, f.admins.RequireAdmin(ctx, unknown), apperrors.ErrCodeForbidden, http.StatusForbidden)
}

func TestAdminService_SetActive(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.admins.SetActive(ctx, f.admin, f.admin.ID, false)
	requireCode(t, err, apperrors.ErrCodeForbidden, http.StatusForbidden)

	_, err = f.admins.SetActive(ctx, f.admin, "missing", false)
	requireCode(t, err, apperrors.ErrCodeNotFound, http.StatusNotFound)

	_, err = f.registry.Join(ctx, "bob-1", tokenFor(f.bob))
	require.NoError(t, err)
	_, err = f.registry.Join(ctx, "bob-2", tokenFor(f.bob))
	require.NoError(t, err)
	_, err = f.registry.Join(ctx, "alice-1", tokenFor(f.alice))
	require.NoError(t, err)

	user, err := f.admins.SetActive(ctx, f.admin, f.bob.ID, false)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
	assert.ElementsMatch(t, []domain.ConnectionID{"bob-1", "bob-2"}, f.terminator.terminated)

	stored, err := f.users.GetByID(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	user, err = f.admins.SetActive(ctx, f.admin, f.bob.ID, true)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.Len(t, f.terminator.terminated, 2)
}

func TestAdminService_DeactivationDropsCachedIdentity(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	user, token, err := f.auth.Register(ctx, "carol@example.com", "secret1", "")
	require.NoError(t, err)
	_, err = f.auth.Authenticate(ctx, token)
	require.NoError(t, err)

	_, err = f.admins.SetActive(ctx, f.admin, user.ID, false)
	require.NoError(t, err)

	_, err = f.auth.Authenticate(ctx, token)
	requireCode(t, err, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
}

func TestAdminService_Promote(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	user, err := f.admins.Promote(ctx, " BOB@example.com ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
	assert.NoError(t, f.admins.RequireAdmin(ctx, f.bob))

	again, err := f.admins.Promote(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, again.Role)

	_, err = f.admins.Promote(ctx, "nobody@example.com")
	requireCode(t, err, apperrors.ErrCodeNotFound, http.StatusNotFound)
}

func TestAdminService_ListUsersAndStats(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	f.post(t, f.alice, "one")
	f.post(t, f.alice, "two")
	f.post(t, f.bob, "three")
	_, err := f.registry.Join(ctx, "a1", tokenFor(f.alice))
	require.NoError(t, err)
	_, err = f.registry.Join(ctx, "a2", tokenFor(f.alice))
	require.NoError(t, err)
	_, err = f.admins.SetActive(ctx, f.admin, f.bob.ID, false)
	require.NoError(t, err)

	summaries, err := f.admins.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	counts := make(map[domain.UserID]int64)
	for i, s := range summaries {
		counts[s.ID] = s.MessageCount
		if i > 0 {
			assert.False(t, s.CreatedAt.After(summaries[i-1].CreatedAt), "not newest first")
		}
	}
	assert.Equal(t, map[domain.UserID]int64{f.alice.ID: 2, f.bob.ID: 1, f.admin.ID: 0}, counts)

	stats, err := f.admins.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{
		TotalUsers:      3,
		ActiveUsers:     2,
		TotalMessages:   3,
		MessagesLastDay: 3,
		OnlineUsers:     1,
	}, *stats)
}
