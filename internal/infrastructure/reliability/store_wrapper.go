package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/ports"
	"murmur/pkg/circuitbreaker"
	"murmur/pkg/retry"
	"murmur/pkg/tracing"

	"go.uber.org/zap"
)

// expected reports domain outcomes that say nothing about store health.
func expected(err error) bool {
	return errors.Is(err, domain.ErrMessageNotFound) ||
		errors.Is(err, domain.ErrUserNotFound) ||
		errors.Is(err, domain.ErrEmailTaken) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Guard runs store calls through one circuit breaker. Reads are retried
// with backoff; writes are attempted once because a timed out write may
// already have been applied.
type Guard struct {
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
	logger  *zap.SugaredLogger
}

// NewGuard builds a guard. Only unexpected errors count as breaker failures
// and only those are retried.
func NewGuard(retryCfg retry.Config, cbCfg circuitbreaker.Config, logger *zap.SugaredLogger) *Guard {
	cbCfg.IsFailure = func(err error) bool { return !expected(err) }
	retryCfg.ShouldRetry = func(err error) bool {
		return !expected(err) && !errors.Is(err, circuitbreaker.ErrOpen)
	}

	g := &Guard{
		breaker: circuitbreaker.New(cbCfg),
		retry:   retryCfg,
		logger:  logger,
	}
	g.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return g
}

// Stats exposes the breaker counters for health reporting.
func (g *Guard) Stats() circuitbreaker.Stats {
	return g.breaker.GetStats()
}

// HealthCheck fails while the breaker is open.
func (g *Guard) HealthCheck(ctx context.Context) error {
	if g.breaker.GetState() == circuitbreaker.StateOpen {
		return fmt.Errorf("store circuit open: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func read[T any](ctx context.Context, g *Guard, entity, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracing.TraceStoreOperation(ctx, op, entity)
	defer span.End()

	v, err := retry.Do(ctx, g.retry, func() (T, error) {
		return circuitbreaker.Call(ctx, g.breaker, func() (T, error) { return fn(ctx) })
	})
	if err != nil && !expected(err) {
		tracing.RecordError(ctx, err)
	}
	return v, g.translate(err)
}

func (g *Guard) write(ctx context.Context, entity, op string, fn func(context.Context) error) error {
	ctx, span := tracing.TraceStoreOperation(ctx, op, entity)
	defer span.End()

	err := g.breaker.Execute(ctx, func() error { return fn(ctx) })
	if err != nil && !expected(err) {
		tracing.RecordError(ctx, err)
	}
	return g.translate(err)
}

func (g *Guard) translate(err error) error {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}

const (
	entityMessage = "message"
	entityUser    = "user"
)

// MessageRepository decorates a ports.MessageRepository with a Guard.
type MessageRepository struct {
	next  ports.MessageRepository
	guard *Guard
}

func NewMessageRepository(next ports.MessageRepository, guard *Guard) *MessageRepository {
	return &MessageRepository{next: next, guard: guard}
}

func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	return r.guard.write(ctx, entityMessage, "create", func(ctx context.Context) error { return r.next.Create(ctx, msg) })
}

func (r *MessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	return read(ctx, r.guard, entityMessage, "get", func(ctx context.Context) (*domain.Message, error) { return r.next.GetByID(ctx, id) })
}

func (r *MessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	return r.guard.write(ctx, entityMessage, "update", func(ctx context.Context) error { return r.next.Update(ctx, msg) })
}

func (r *MessageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	return r.guard.write(ctx, entityMessage, "delete", func(ctx context.Context) error { return r.next.Delete(ctx, id) })
}

func (r *MessageRepository) ListNewest(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	return read(ctx, r.guard, entityMessage, "list_newest", func(ctx context.Context) ([]*domain.Message, error) { return r.next.ListNewest(ctx, offset, limit) })
}

func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	return read(ctx, r.guard, entityMessage, "count", func(ctx context.Context) (int64, error) { return r.next.Count(ctx) })
}

func (r *MessageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return read(ctx, r.guard, entityMessage, "count_since", func(ctx context.Context) (int64, error) { return r.next.CountSince(ctx, since) })
}

func (r *MessageRepository) CountByAuthor(ctx context.Context) (map[domain.UserID]int64, error) {
	return read(ctx, r.guard, entityMessage, "count_by_author", func(ctx context.Context) (map[domain.UserID]int64, error) { return r.next.CountByAuthor(ctx) })
}

// UserRepository decorates a ports.UserRepository with a Guard.
type UserRepository struct {
	next  ports.UserRepository
	guard *Guard
}

func NewUserRepository(next ports.UserRepository, guard *Guard) *UserRepository {
	return &UserRepository{next: next, guard: guard}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.guard.write(ctx, entityUser, "create", func(ctx context.Context) error { return r.next.Create(ctx, user) })
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return read(ctx, r.guard, entityUser, "get", func(ctx context.Context) (*domain.User, error) { return r.next.GetByID(ctx, id) })
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return read(ctx, r.guard, entityUser, "get_by_email", func(ctx context.Context) (*domain.User, error) { return r.next.GetByEmail(ctx, email) })
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	return r.guard.write(ctx, entityUser, "update", func(ctx context.Context) error { return r.next.Update(ctx, user) })
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	return read(ctx, r.guard, entityUser, "list", func(ctx context.Context) ([]*domain.User, error) { return r.next.List(ctx) })
}

func (r *UserRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	return read(ctx, r.guard, entityUser, "count", func(ctx context.Context) (int64, error) { return r.next.Count(ctx, activeOnly) })
}
