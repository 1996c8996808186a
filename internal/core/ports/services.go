package ports

import (
	"context"
	"time"

	"murmur/internal/core/domain"
)

// IdentityVerifier resolves an opaque credential to the identity it belongs to.
type IdentityVerifier interface {
	Authenticate(ctx context.Context, credential string) (domain.Identity, error)
}

// Broadcaster delivers an event to every live, joined connection. It must not
// block on slow receivers.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// ConnectionTerminator closes live connections on behalf of moderation.
type ConnectionTerminator interface {
	Terminate(connID domain.ConnectionID, reason string)
}

// ChatMetrics receives counters from the chat core.
type ChatMetrics interface {
	MessageCommitted(action string)
	ObserveStoreLatency(operation string, d time.Duration)
	SetOnlineUsers(n int)
	ConnectionOpened()
	ConnectionClosed()
	DeliveryDropped()
}
