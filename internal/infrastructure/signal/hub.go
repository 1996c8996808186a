package signal

import (
	"sync"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"

	"go.uber.org/zap"
)

// Hub tracks live clients and fans frames out to the joined ones.
// It implements ports.Broadcaster and ports.ConnectionTerminator.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]*Client

	isJoined func(domain.ConnectionID) bool
	metrics  ports.ChatMetrics
	logger   *zap.SugaredLogger
}

// NewHub creates a hub. isJoined decides which clients receive broadcasts.
func NewHub(isJoined func(domain.ConnectionID) bool, metrics ports.ChatMetrics, logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:  make(map[domain.ConnectionID]*Client),
		isJoined: isJoined,
		metrics:  metrics,
		logger:   logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(id domain.ConnectionID) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

func (h *Hub) client(id domain.ConnectionID) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Count returns the number of open sockets, joined or not.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast marshals payload once and queues it on every joined client.
// Clients whose queue is full are closed rather than waited on.
func (h *Hub) Broadcast(event string, payload interface{}) {
	frame, err := encode(event, payload)
	if err != nil {
		h.logger.Errorw("failed to encode broadcast", "event", event, "error", err)
		return
	}

	var dropped []*Client
	h.mu.RLock()
	for id, c := range h.clients {
		if !h.isJoined(id) {
			continue
		}
		if !c.enqueue(frame) {
			dropped = append(dropped, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dropped {
		h.logger.Warnw("send queue full, dropping connection", "connection_id", c.id, "event", event)
		if h.metrics != nil {
			h.metrics.DeliveryDropped()
		}
		c.Close()
	}
}

// Terminate sends reason as an error frame and closes the connection.
func (h *Hub) Terminate(connID domain.ConnectionID, reason string) {
	c, ok := h.client(connID)
	if !ok {
		return
	}
	h.sendTo(c, TypeError, ErrorPayload{Message: reason})
	c.Close()
}

// sendTo queues a frame for one client. A full queue closes the client.
func (h *Hub) sendTo(c *Client, event string, payload interface{}) {
	frame, err := encode(event, payload)
	if err != nil {
		h.logger.Errorw("failed to encode frame", "event", event, "error", err)
		return
	}
	if !c.enqueue(frame) {
		h.logger.Warnw("send queue full, dropping connection", "connection_id", c.id, "event", event)
		if h.metrics != nil {
			h.metrics.DeliveryDropped()
		}
		c.Close()
	}
}

// CloseAll closes every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
