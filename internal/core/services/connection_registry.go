package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"go.uber.org/zap"
)

// ConnectionRegistry maps live connections to the identity they joined as.
// A connection is bound to at most one identity; an identity may hold many
// connections.
type ConnectionRegistry struct {
	verifier ports.IdentityVerifier
	logger   *zap.SugaredLogger

	mu       sync.RWMutex
	bindings map[domain.ConnectionID]domain.Identity
}

func NewConnectionRegistry(verifier ports.IdentityVerifier, logger *zap.SugaredLogger) *ConnectionRegistry {
	return &ConnectionRegistry{
		verifier: verifier,
		logger:   logger,
		bindings: make(map[domain.ConnectionID]domain.Identity),
	}
}

// Join verifies credential and binds the resulting identity to connID.
// A second Join on the same connection replaces the first binding.
func (r *ConnectionRegistry) Join(ctx context.Context, connID domain.ConnectionID, credential string) (domain.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return domain.Identity{}, errUnauthenticated(nil)
	}

	// verification may hit the store; keep it outside the lock
	identity, err := r.verifier.Authenticate(ctx, credential)
	if err != nil {
		r.logger.Debugw("join rejected", "connection_id", connID, "error", err)
		return domain.Identity{}, errUnauthenticated(err)
	}
	if !identity.IsActive {
		return domain.Identity{}, errUnauthenticated(nil)
	}

	r.mu.Lock()
	r.bindings[connID] = identity
	r.mu.Unlock()

	return identity, nil
}

// Leave removes connID's binding and reports whether one existed.
func (r *ConnectionRegistry) Leave(connID domain.ConnectionID) bool {
	_, ok := r.Remove(connID)
	return ok
}

// Remove is Leave that also returns the identity that was bound.
func (r *ConnectionRegistry) Remove(connID domain.ConnectionID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.bindings[connID]
	if ok {
		delete(r.bindings, connID)
	}
	return identity, ok
}

// Identity returns the identity bound to connID.
func (r *ConnectionRegistry) Identity(connID domain.ConnectionID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.bindings[connID]
	return identity, ok
}

func (r *ConnectionRegistry) IsJoined(connID domain.ConnectionID) bool {
	_, ok := r.Identity(connID)
	return ok
}

// ListOnline returns one entry per distinct identity, ordered by email then ID.
func (r *ConnectionRegistry) ListOnline() []domain.OnlineUser {
	r.mu.RLock()
	seen := make(map[domain.UserID]domain.OnlineUser, len(r.bindings))
	for _, identity := range r.bindings {
		seen[identity.ID] = domain.OnlineUser{UserID: identity.ID, Email: identity.Email}
	}
	r.mu.RUnlock()

	online := make([]domain.OnlineUser, 0, len(seen))
	for _, u := range seen {
		online = append(online, u)
	}
	sort.Slice(online, func(i, j int) bool {
		if online[i].Email != online[j].Email {
			return online[i].Email < online[j].Email
		}
		return online[i].UserID < online[j].UserID
	})
	return online
}

// Connections returns a snapshot of all joined connection IDs.
func (r *ConnectionRegistry) Connections() []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ConnectionID, 0, len(r.bindings))
	for id := range r.bindings {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionsOf returns the joined connections bound to userID.
func (r *ConnectionRegistry) ConnectionsOf(userID domain.UserID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []domain.ConnectionID
	for id, identity := range r.bindings {
		if identity.ID == userID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Count returns the number of joined connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
