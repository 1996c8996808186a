package services

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"testing"

	"murmur/internal/core/domain"
	apperrors "murmur/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_Join(t *testing.T) {
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	inactive := identity("u2", "gone@example.com", domain.RoleUser)
	inactive.IsActive = false
	reg := NewConnectionRegistry(newStubVerifier(alice, inactive), testLogger)
	ctx := context.Background()

	t.Run("valid token binds", func(t *testing.T) {
		got, err := reg.Join(ctx, "c1", " "+tokenFor(alice)+" ")
		require.NoError(t, err)
		assert.Equal(t, alice, got)
		assert.True(t, reg.IsJoined("c1"))
	})

	for name, cred := range map[string]string{
		"empty":    "",
		"unknown":  "nope",
		"inactive": tokenFor(inactive),
	} {
		t.Run(name+" is rejected", func(t *testing.T) {
			_, err := reg.Join(ctx, "bad", cred)
			requireCode(t, err, apperrors.ErrCodeUnauthorized, http.StatusUnauthorized)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
			assert.False(t, reg.IsJoined("bad"))
		})
	}
}

func TestConnectionRegistry_RejoinReplacesBinding(t *testing.T) {
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	bob := identity("u2", "bob@example.com", domain.RoleUser)
	reg := NewConnectionRegistry(newStubVerifier(alice, bob), testLogger)

	_, err := reg.Join(context.Background(), "c1", tokenFor(alice))
	require.NoError(t, err)
	_, err = reg.Join(context.Background(), "c1", tokenFor(bob))
	require.NoError(t, err)

	got, ok := reg.Identity("c1")
	require.True(t, ok)
	assert.Equal(t, bob.ID, got.ID)
	assert.Equal(t, []domain.OnlineUser{{UserID: bob.ID, Email: bob.Email}}, reg.ListOnline())

	// a failed rejoin keeps the previous binding
	_, err = reg.Join(context.Background(), "c1", "nope")
	require.Error(t, err)
	assert.True(t, reg.IsJoined("c1"))
}

func TestConnectionRegistry_ListOnlineDeduplicatesAndSorts(t *testing.T) {
	zed := identity("u3", "zed@example.com", domain.RoleUser)
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	reg := NewConnectionRegistry(newStubVerifier(zed, alice), testLogger)
	ctx := context.Background()

	for i, id := range []domain.Identity{zed, alice, zed, alice, alice} {
		_, err := reg.Join(ctx, domain.ConnectionID(fmt.Sprintf("c%d", i)), tokenFor(id))
		require.NoError(t, err)
	}

	assert.Equal(t, 5, reg.Count())
	assert.Equal(t, []domain.OnlineUser{
		{UserID: alice.ID, Email: alice.Email},
		{UserID: zed.ID, Email: zed.Email},
	}, reg.ListOnline())
	assert.Len(t, reg.ConnectionsOf(alice.ID), 3)
}

func TestConnectionRegistry_LeaveIsIdempotent(t *testing.T) {
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	reg := NewConnectionRegistry(newStubVerifier(alice), testLogger)

	_, err := reg.Join(context.Background(), "c1", tokenFor(alice))
	require.NoError(t, err)

	assert.True(t, reg.Leave("c1"))
	assert.False(t, reg.Leave("c1"))
	assert.False(t, reg.Leave("never-joined"))
	assert.Empty(t, reg.ListOnline())
	assert.Zero(t, reg.Count())
}

// Random join/leave sequences must leave the registry matching a plain map model.
func TestConnectionRegistry_MatchesModel(t *testing.T) {
	users := []domain.Identity{
		identity("u1", "a@example.com", domain.RoleUser),
		identity("u2", "b@example.com", domain.RoleUser),
		identity("u3", "c@example.com", domain.RoleAdmin),
	}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		reg := NewConnectionRegistry(newStubVerifier(users...), testLogger)
		model := make(map[domain.ConnectionID]domain.Identity)

		for step := 0; step < 40; step++ {
			conn := domain.ConnectionID(fmt.Sprintf("c%d", rng.Intn(6)))
			if rng.Intn(3) == 0 {
				_, had := model[conn]
				delete(model, conn)
				assert.Equal(t, had, reg.Leave(conn))
				continue
			}
			u := users[rng.Intn(len(users))]
			_, err := reg.Join(context.Background(), conn, tokenFor(u))
			require.NoError(t, err)
			model[conn] = u
		}

		seen := make(map[domain.UserID]domain.OnlineUser)
		for _, id := range model {
			seen[id.ID] = domain.OnlineUser{UserID: id.ID, Email: id.Email}
		}
		want := make([]domain.OnlineUser, 0, len(seen))
		for _, u := range seen {
			want = append(want, u)
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Email < want[j].Email })

		require.Equal(t, want, reg.ListOnline(), "round %d", round)
		require.Equal(t, len(model), reg.Count(), "round %d", round)
	}
}

func TestConnectionRegistry_ConcurrentJoinLeave(t *testing.T) {
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	reg := NewConnectionRegistry(newStubVerifier(alice), testLogger)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := domain.ConnectionID(fmt.Sprintf("c%d", i))
			_, _ = reg.Join(context.Background(), conn, tokenFor(alice))
			_ = reg.ListOnline()
			reg.Leave(conn)
		}(i)
	}
	wg.Wait()

	assert.Zero(t, reg.Count())
	assert.Empty(t, reg.ListOnline())
}
