// Package repotest holds behaviour checks shared by every repository backend.
package repotest

import (
	"context"
	"testing"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email string) *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		Name:         "name-" + email,
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newMessage(author domain.UserID, content string, at time.Time) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		Content:   content,
		AuthorID:  author,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// RunUserRepository exercises a fresh, empty UserRepository.
func RunUserRepository(t *testing.T, newRepo func(t *testing.T) ports.UserRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		u := newUser("ada@example.com")
		require.NoError(t, repo.Create(ctx, u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
		assert.Equal(t, u.PasswordHash, got.PasswordHash)
		assert.Equal(t, domain.RoleUser, got.Role)
		assert.True(t, got.CreatedAt.Equal(u.CreatedAt))

		byEmail, err := repo.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newUser("dup@example.com")))
		err := repo.Create(ctx, newUser("dup@example.com"))
		assert.ErrorIs(t, err, domain.ErrEmailTaken)
	})

	t.Run("missing user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		_, err = repo.GetByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
		err = repo.Update(ctx, newUser("ghost@example.com"))
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("update and count", func(t *testing.T) {
		repo := newRepo(t)
		a := newUser("a@example.com")
		b := newUser("b@example.com")
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		b.IsActive = false
		b.Role = domain.RoleAdmin
		require.NoError(t, repo.Update(ctx, b))

		got, err := repo.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, domain.RoleAdmin, got.Role)

		all, err := repo.Count(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, int64(2), all)
		active, err := repo.Count(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, int64(1), active)

		users, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})
}

// RunMessageRepository exercises a fresh, empty MessageRepository.
func RunMessageRepository(t *testing.T, newRepo func(t *testing.T) ports.MessageRepository) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("create get update delete", func(t *testing.T) {
		repo := newRepo(t)
		m := newMessage("u1", "hello", base)
		m.ImageURL = "https://example.com/a.png"
		require.NoError(t, repo.Create(ctx, m))

		got, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "hello", got.Content)
		assert.Equal(t, m.ImageURL, got.ImageURL)
		assert.Equal(t, domain.UserID("u1"), got.AuthorID)
		assert.True(t, got.CreatedAt.Equal(base))

		got.Content = "edited"
		got.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, repo.Update(ctx, got))

		again, err := repo.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "edited", again.Content)
		assert.True(t, again.CreatedAt.Equal(base))

		require.NoError(t, repo.Delete(ctx, m.ID))
		_, err = repo.GetByID(ctx, m.ID)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, m.ID), domain.ErrMessageNotFound)
		assert.ErrorIs(t, repo.Update(ctx, m), domain.ErrMessageNotFound)
	})

	t.Run("newest first paging", func(t *testing.T) {
		repo := newRepo(t)
		var ids []domain.MessageID
		for i := 0; i < 5; i++ {
			m := newMessage("u1", "m", base.Add(time.Duration(i)*time.Microsecond))
			ids = append(ids, m.ID)
			require.NoError(t, repo.Create(ctx, m))
		}

		first, err := repo.ListNewest(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, ids[4], first[0].ID)
		assert.Equal(t, ids[3], first[1].ID)

		rest, err := repo.ListNewest(ctx, 4, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, ids[0], rest[0].ID)

		beyond, err := repo.ListNewest(ctx, 10, 10)
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("counts", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newMessage("u1", "old", base.Add(-48*time.Hour))))
		require.NoError(t, repo.Create(ctx, newMessage("u1", "new", base)))
		recent := newMessage("u2", "new", base.Add(time.Second))
		require.NoError(t, repo.Create(ctx, recent))

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		since, err := repo.CountSince(ctx, base.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(2), since)

		require.NoError(t, repo.Delete(ctx, recent.ID))
		byAuthor, err := repo.CountByAuthor(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), byAuthor["u1"])
		assert.Zero(t, byAuthor["u2"])
	})
}
