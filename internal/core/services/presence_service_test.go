package services

import (
	"context"
	"testing"

	"murmur/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceService_JoinAndLeave(t *testing.T) {
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	bob := identity("u2", "bob@example.com", domain.RoleUser)
	reg := NewConnectionRegistry(newStubVerifier(alice, bob), testLogger)
	b := &recordingBroadcaster{}
	metrics := newRecordingMetrics()
	p := NewPresenceService(reg, b, testLogger)
	p.SetMetrics(metrics)
	ctx := context.Background()

	_, err := p.Join(ctx, "a1", tokenFor(alice))
	require.NoError(t, err)
	_, err = p.Join(ctx, "a2", tokenFor(alice))
	require.NoError(t, err)
	_, err = p.Join(ctx, "b1", tokenFor(bob))
	require.NoError(t, err)

	snapshots := b.named(EventPresence)
	require.Len(t, snapshots, 3)
	last := snapshots[2].payload.(domain.PresenceSnapshot)
	assert.Equal(t, domain.PresenceOnline, last.Change)
	assert.Equal(t, bob.ID, last.UserID)
	assert.Len(t, last.OnlineUsers, 2)

	// alice still has a second connection, so she stays online
	assert.True(t, p.Leave("a1"))
	snap := b.named(EventPresence)[3].payload.(domain.PresenceSnapshot)
	assert.Equal(t, domain.PresenceOffline, snap.Change)
	assert.Equal(t, alice.ID, snap.UserID)
	assert.Len(t, snap.OnlineUsers, 2)

	assert.True(t, p.Leave("a2"))
	snap = b.named(EventPresence)[4].payload.(domain.PresenceSnapshot)
	assert.Equal(t, []domain.OnlineUser{{UserID: bob.ID, Email: bob.Email}}, snap.OnlineUsers)

	assert.Equal(t, []int{1, 1, 2, 2, 1}, metrics.online)
}

func TestPresenceService_RepeatedLeaveAndFailedJoinAreSilent(t *testing.T) {
	alice := identity("u1", "alice@example.com", domain.RoleUser)
	reg := NewConnectionRegistry(newStubVerifier(alice), testLogger)
	b := &recordingBroadcaster{}
	p := NewPresenceService(reg, b, testLogger)

	_, err := p.Join(context.Background(), "x", "bogus")
	require.Error(t, err)
	assert.False(t, p.Leave("x"))
	assert.Empty(t, b.all())

	_, err = p.Join(context.Background(), "a1", tokenFor(alice))
	require.NoError(t, err)
	assert.True(t, p.Leave("a1"))
	assert.False(t, p.Leave("a1"))
	assert.Len(t, b.all(), 2)

	_, ok := p.Identity("a1")
	assert.False(t, ok)
	assert.Empty(t, p.Online())
}
