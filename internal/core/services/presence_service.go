package services

import (
	"context"
	"sync"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"go.uber.org/zap"
)

// PresenceService joins and releases connections and pushes the full online
// list to every joined connection after each change.
type PresenceService struct {
	registry    *ConnectionRegistry
	broadcaster ports.Broadcaster
	metrics     ports.ChatMetrics
	logger      *zap.SugaredLogger

	// held while a snapshot is computed and queued, so receivers never see
	// an older snapshot after a newer one
	mu sync.Mutex
}

func NewPresenceService(registry *ConnectionRegistry, broadcaster ports.Broadcaster, logger *zap.SugaredLogger) *PresenceService {
	return &PresenceService{
		registry:    registry,
		broadcaster: broadcaster,
		metrics:     nopMetrics{},
		logger:      logger,
	}
}

func (p *PresenceService) SetMetrics(m ports.ChatMetrics) {
	if m != nil {
		p.metrics = m
	}
}

// Join binds connID to the credential's identity and announces it.
func (p *PresenceService) Join(ctx context.Context, connID domain.ConnectionID, credential string) (domain.Identity, error) {
	identity, err := p.registry.Join(ctx, connID, credential)
	if err != nil {
		return domain.Identity{}, err
	}

	p.logger.Infow("connection joined", "connection_id", connID, "user_id", identity.ID)
	p.publish(domain.PresenceOnline, identity.ID)
	return identity, nil
}

// Leave releases connID. Presence is published only if a binding was removed,
// so repeated calls are harmless.
func (p *PresenceService) Leave(connID domain.ConnectionID) bool {
	identity, removed := p.registry.Remove(connID)
	if !removed {
		return false
	}

	p.logger.Infow("connection left", "connection_id", connID, "user_id", identity.ID)
	p.publish(domain.PresenceOffline, identity.ID)
	return true
}

// Identity returns the identity joined on connID.
func (p *PresenceService) Identity(connID domain.ConnectionID) (domain.Identity, bool) {
	return p.registry.Identity(connID)
}

// Online returns the current online set.
func (p *PresenceService) Online() []domain.OnlineUser {
	return p.registry.ListOnline()
}

func (p *PresenceService) publish(change domain.PresenceChange, userID domain.UserID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	online := p.registry.ListOnline()
	p.metrics.SetOnlineUsers(len(online))
	p.broadcaster.Broadcast(EventPresence, domain.PresenceSnapshot{
		OnlineUsers: online,
		Change:      change,
		UserID:      userID,
	})
}
