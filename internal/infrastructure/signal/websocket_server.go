package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	"murmur/internal/core/services"
	apperrors "murmur/pkg/errors"
	"murmur/pkg/ratelimit"
	"murmur/pkg/tracing"
	"murmur/pkg/utils"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes the websocket transport.
type Options struct {
	PingInterval  time.Duration
	PongTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int

	MaxMessageSize       int64
	MessagesPerSecond    float64 // 0 disables the per-connection limit
	Burst                int
	ConnectionsPerMinute int // per client IP; 0 disables
	MaxConcurrent        int // 0 means unlimited

	// AllowedOrigins lists permitted Origin headers. Empty or "*" allows all.
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendQueueSize:     64,
		MaxMessageSize:    64 * 1024,
		MessagesPerSecond: 10,
		Burst:             20,
	}
}

// WebSocketServer speaks the realtime chat protocol. Each connection gets
// one reader (this handler's goroutine) and one writer.
type WebSocketServer struct {
	hub      *Hub
	presence *services.PresenceService
	chat     *services.ChatService
	metrics  ports.ChatMetrics
	logger   *zap.SugaredLogger

	opts        Options
	upgrader    websocket.Upgrader
	connLimiter *ratelimit.KeyedLimiter
}

func NewWebSocketServer(
	hub *Hub,
	presence *services.PresenceService,
	chat *services.ChatService,
	metrics ports.ChatMetrics,
	opts Options,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	def := DefaultOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = def.PingInterval
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = 2 * opts.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = def.SendQueueSize
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}

	s := &WebSocketServer{
		hub:      hub,
		presence: presence,
		chat:     chat,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if opts.ConnectionsPerMinute > 0 {
		s.connLimiter = ratelimit.NewKeyedLimiter(ratelimit.PerMinute(opts.ConnectionsPerMinute), opts.ConnectionsPerMinute)
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// SweepLimiters drops idle per-IP connection limiters.
func (s *WebSocketServer) SweepLimiters(maxIdle time.Duration) {
	if s.connLimiter != nil {
		s.connLimiter.Sweep(maxIdle)
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxConcurrent > 0 && s.hub.Count() >= s.opts.MaxConcurrent {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	ip := ratelimit.ClientIP(r)
	if s.connLimiter != nil && !s.connLimiter.Allow(ip) {
		s.logger.Warnw("websocket connection rate limited", "ip", ip)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(domain.ConnectionID(utils.NewID()), conn, s.opts.SendQueueSize, s.opts.PingInterval, s.opts.WriteTimeout)
	s.hub.register(client)
	s.metrics.ConnectionOpened()
	go client.writePump()

	s.logger.Infow("websocket connected", "connection_id", client.id, "ip", ip)

	var leaveOnce sync.Once
	release := func() {
		leaveOnce.Do(func() {
			s.presence.Leave(client.id)
			s.hub.unregister(client.id)
			client.Close()
			s.metrics.ConnectionClosed()
			s.logger.Infow("websocket disconnected", "connection_id", client.id)
		})
	}
	defer release()

	s.readLoop(r.Context(), client)
}

func (s *WebSocketServer) readLoop(ctx context.Context, c *Client) {
	conn := c.conn
	conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		burst := s.opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), burst)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("websocket read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			s.logger.Debugw("malformed frame", "connection_id", c.id, "frame", utils.TruncateString(string(data), 120))
			s.hub.sendTo(c, TypeError, ErrorPayload{Message: "invalid message format"})
			continue
		}

		if limiter != nil && !limiter.Allow() {
			s.hub.sendTo(c, TypeError, ErrorPayload{Message: "rate limit exceeded"})
			continue
		}

		if !s.handle(ctx, c, env) {
			return
		}
	}
}

// handle processes one event. It returns false when the connection must close.
func (s *WebSocketServer) handle(ctx context.Context, c *Client, env Envelope) bool {
	ctx, span := tracing.TraceWebSocketEvent(ctx, env.Type, string(c.id))
	defer span.End()

	if env.Type == TypePing {
		s.hub.sendTo(c, TypePong, nil)
		return true
	}

	if env.Type == TypeJoin {
		return s.join(ctx, c, env.Payload)
	}

	identity, joined := s.presence.Identity(c.id)
	if !joined {
		s.hub.sendTo(c, TypeError, ErrorPayload{Message: "unauthorized"})
		return true
	}
	tracing.AddSpanAttributes(ctx, tracing.UserIDKey.String(string(identity.ID)))

	var err error
	switch env.Type {
	case TypeMessageSend:
		var draft domain.MessageDraft
		if err = decodePayload(env.Payload, &draft); err == nil {
			_, err = s.chat.Send(ctx, c.id, draft)
		}

	case TypeMessageEdit:
		var p editPayload
		if err = decodePayload(env.Payload, &p); err == nil {
			_, err = s.chat.Edit(ctx, c.id, p.ID, domain.MessagePatch{Content: p.Content, ImageURL: p.ImageURL})
		}

	case TypeMessageDelete:
		var p deletePayload
		if err = decodePayload(env.Payload, &p); err == nil {
			err = s.chat.Delete(ctx, c.id, p.ID)
		}

	default:
		err = apperrors.NewInvalidInputError("unknown message type: " + env.Type)
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		s.hub.sendTo(c, TypeError, ErrorPayload{Message: publicMessage(err)})
	}
	return true
}

func (s *WebSocketServer) join(ctx context.Context, c *Client, payload json.RawMessage) bool {
	token, err := parseJoinToken(payload)
	if err == nil {
		var identity domain.Identity
		identity, err = s.presence.Join(ctx, c.id, token)
		if err == nil {
			s.hub.sendTo(c, TypeJoined, JoinedPayload{ConnectionID: c.id, User: identity})
			return true
		}
	}

	s.logger.Infow("websocket join rejected", "connection_id", c.id)
	s.hub.sendTo(c, TypeError, ErrorPayload{Message: "unauthorized"})
	return false
}

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return apperrors.NewInvalidInputError("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "invalid payload", http.StatusBadRequest)
	}
	return nil
}

// publicMessage is the client-facing text of err. Unclassified errors are not echoed.
func publicMessage(err error) string {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr.Message
	}
	return "internal error"
}
