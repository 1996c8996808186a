package services

import (
	"context"
	"sync"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	"murmur/pkg/keylock"
	"murmur/pkg/tracing"
	"murmur/pkg/utils"
	"murmur/pkg/validation"

	"go.uber.org/zap"
)

// Realtime event names.
const (
	EventMessageNew     = "message:new"
	EventMessageUpdated = "message:updated"
	EventMessageDeleted = "message:deleted"
	EventPresence       = "presence"
)

type ChatConfig struct {
	MessagesPerPage  int
	MaxContentLength int
}

func DefaultChatConfig() ChatConfig {
	return ChatConfig{MessagesPerPage: 50, MaxContentLength: 4000}
}

// ChatService persists messages and fans them out. Every mutation is
// persisted and broadcast inside one commit section, so all receivers see
// events in commit order.
type ChatService struct {
	registry    *ConnectionRegistry
	messages    ports.MessageRepository
	users       ports.UserRepository
	broadcaster ports.Broadcaster
	metrics     ports.ChatMetrics
	logger      *zap.SugaredLogger
	cfg         ChatConfig

	locks *keylock.KeyLock

	commitMu   sync.Mutex
	lastCommit time.Time
	now        func() time.Time
}

func NewChatService(
	registry *ConnectionRegistry,
	messages ports.MessageRepository,
	users ports.UserRepository,
	broadcaster ports.Broadcaster,
	cfg ChatConfig,
	logger *zap.SugaredLogger,
) *ChatService {
	if cfg.MessagesPerPage <= 0 {
		cfg.MessagesPerPage = DefaultChatConfig().MessagesPerPage
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultChatConfig().MaxContentLength
	}
	return &ChatService{
		registry:    registry,
		messages:    messages,
		users:       users,
		broadcaster: broadcaster,
		metrics:     nopMetrics{},
		logger:      logger,
		cfg:         cfg,
		locks:       keylock.New(),
		now:         time.Now,
	}
}

// SetMetrics attaches a metrics sink.
func (s *ChatService) SetMetrics(m ports.ChatMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// Send posts a message on behalf of the identity joined on connID.
func (s *ChatService) Send(ctx context.Context, connID domain.ConnectionID, draft domain.MessageDraft) (*domain.Message, error) {
	identity, ok := s.registry.Identity(connID)
	if !ok {
		return nil, errUnauthenticated(nil)
	}
	return s.Post(ctx, identity, draft)
}

// Edit applies patch on behalf of the identity joined on connID.
func (s *ChatService) Edit(ctx context.Context, connID domain.ConnectionID, id domain.MessageID, patch domain.MessagePatch) (*domain.Message, error) {
	identity, ok := s.registry.Identity(connID)
	if !ok {
		return nil, errUnauthenticated(nil)
	}
	return s.Patch(ctx, identity, id, patch)
}

// Delete removes a message on behalf of the identity joined on connID.
func (s *ChatService) Delete(ctx context.Context, connID domain.ConnectionID, id domain.MessageID) error {
	identity, ok := s.registry.Identity(connID)
	if !ok {
		return errUnauthenticated(nil)
	}
	return s.Remove(ctx, identity, id)
}

// Post validates, persists and broadcasts a new message authored by author.
// Invalid drafts never reach the store.
func (s *ChatService) Post(ctx context.Context, author domain.Identity, draft domain.MessageDraft) (*domain.Message, error) {
	draft = s.clean(draft)
	if err := s.validate(draft); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "chat.post")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.UserIDKey.String(string(author.ID)))

	msg := &domain.Message{
		ID:       domain.MessageID(utils.NewID()),
		Content:  draft.Content,
		ImageURL: draft.ImageURL,
		AuthorID: author.ID,
		User:     domain.AuthorOf(author),
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	msg.CreatedAt = s.nextTimestamp()
	msg.UpdatedAt = msg.CreatedAt

	if err := s.store(ctx, "create", func() error { return s.messages.Create(ctx, msg) }); err != nil {
		s.logger.Errorw("failed to persist message", "user_id", author.ID, "error", err)
		return nil, storeError(err)
	}

	s.broadcaster.Broadcast(EventMessageNew, msg.Clone())
	s.metrics.MessageCommitted("sent")
	return msg, nil
}

// Patch edits a message. Only the author may edit, admins included.
func (s *ChatService) Patch(ctx context.Context, actor domain.Identity, id domain.MessageID, patch domain.MessagePatch) (*domain.Message, error) {
	if patch.IsEmpty() {
		return nil, errInvalid(domain.ErrEmptyMessage, "content or imageUrl is required")
	}

	ctx, span := tracing.StartSpan(ctx, "chat.patch")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.MessageIDKey.String(string(id)))

	unlock := s.locks.Lock(string(id))
	defer unlock()

	current, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if current.AuthorID != actor.ID {
		return nil, errForbidden("only the author can edit this message")
	}

	draft := s.clean(patch.ApplyTo(current))
	if err := s.validate(draft); err != nil {
		return nil, err
	}

	updated := current.Clone()
	updated.Content = draft.Content
	updated.ImageURL = draft.ImageURL
	updated.User = domain.AuthorOf(actor)

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	updated.UpdatedAt = s.nextTimestamp()
	if err := s.store(ctx, "update", func() error { return s.messages.Update(ctx, updated) }); err != nil {
		return nil, storeError(err)
	}

	s.broadcaster.Broadcast(EventMessageUpdated, updated.Clone())
	s.metrics.MessageCommitted("edited")
	return updated, nil
}

// Remove deletes a message. The author and admins may delete.
func (s *ChatService) Remove(ctx context.Context, actor domain.Identity, id domain.MessageID) error {
	ctx, span := tracing.StartSpan(ctx, "chat.remove")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.MessageIDKey.String(string(id)))

	unlock := s.locks.Lock(string(id))
	defer unlock()

	current, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if current.AuthorID != actor.ID && !actor.IsAdmin() {
		return errForbidden("only the author or an admin can delete this message")
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.store(ctx, "delete", func() error { return s.messages.Delete(ctx, id) }); err != nil {
		return storeError(err)
	}

	s.broadcaster.Broadcast(EventMessageDeleted, domain.MessageDeleted{ID: id})
	s.metrics.MessageCommitted("deleted")
	if current.AuthorID != actor.ID {
		s.logger.Infow("message removed by admin", "message_id", id, "admin_id", actor.ID, "author_id", current.AuthorID)
	}
	return nil
}

// ListMessages returns page (1-based) of the history in ascending order.
// Pages count back from the newest message.
func (s *ChatService) ListMessages(ctx context.Context, page int) (*domain.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	perPage := s.cfg.MessagesPerPage

	total, err := s.messages.Count(ctx)
	if err != nil {
		return nil, storeError(err)
	}

	msgs, err := s.messages.ListNewest(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, storeError(err)
	}
	s.present(ctx, msgs)

	return &domain.MessagePage{
		Messages:   msgs,
		Pagination: domain.NewPagination(page, perPage, total),
	}, nil
}

// Recent returns the newest limit messages in ascending order.
func (s *ChatService) Recent(ctx context.Context, limit int) ([]*domain.Message, error) {
	msgs, err := s.messages.ListNewest(ctx, 0, limit)
	if err != nil {
		return nil, storeError(err)
	}
	s.present(ctx, msgs)
	return msgs, nil
}

// present reverses newest-first store order and fills in author details.
func (s *ChatService) present(ctx context.Context, msgs []*domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	authors := make(map[domain.UserID]domain.Author)
	for _, m := range msgs {
		author, ok := authors[m.AuthorID]
		if !ok {
			author = domain.Author{ID: m.AuthorID}
			if u, err := s.users.GetByID(ctx, m.AuthorID); err == nil {
				author = domain.AuthorOf(u.Identity())
			} else {
				s.logger.Warnw("author lookup failed", "user_id", m.AuthorID, "error", err)
			}
			authors[m.AuthorID] = author
		}
		m.User = author
	}
}

func (s *ChatService) clean(d domain.MessageDraft) domain.MessageDraft {
	d = d.Normalize()
	d.Content = utils.SanitizeString(d.Content)
	return d
}

func (s *ChatService) validate(d domain.MessageDraft) error {
	if d.IsEmpty() {
		return errInvalid(domain.ErrEmptyMessage, domain.ErrEmptyMessage.Error())
	}
	if err := validation.ValidateMessageContent(d.Content, s.cfg.MaxContentLength); err != nil {
		return errInvalid(err, err.Error())
	}
	if err := validation.ValidateImageURL(d.ImageURL); err != nil {
		return errInvalid(err, err.Error())
	}
	return nil
}

// store times a repository write and records failures on the span.
func (s *ChatService) store(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.ObserveStoreLatency(op, time.Since(start))
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

// nextTimestamp must be called with commitMu held.
func (s *ChatService) nextTimestamp() time.Time {
	s.lastCommit = utils.StrictlyAfter(s.lastCommit, s.now())
	return s.lastCommit
}
