package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/infrastructure/repositories/memory"
	"murmur/pkg/circuitbreaker"
	"murmur/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errDown = errors.New("connection refused")

// flakyMessages fails the first failures calls of each method it wraps.
type flakyMessages struct {
	*memory.MemoryMessageRepository
	failures int
	calls    int
}

func (f *flakyMessages) Count(ctx context.Context) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errDown
	}
	return f.MemoryMessageRepository.Count(ctx)
}

func (f *flakyMessages) Create(ctx context.Context, msg *domain.Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errDown
	}
	return f.MemoryMessageRepository.Create(ctx, msg)
}

func newFlaky(failures int) *flakyMessages {
	return &flakyMessages{
		MemoryMessageRepository: memory.NewMemoryMessageRepository().(*memory.MemoryMessageRepository),
		failures:                failures,
	}
}

func testGuard(threshold int) *Guard {
	return NewGuard(
		retry.Config{Enabled: true, MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1},
		circuitbreaker.Config{FailureThreshold: threshold, SuccessThreshold: 1, Timeout: time.Hour},
		zap.NewNop().Sugar(),
	)
}

func TestReadsAreRetried(t *testing.T) {
	flaky := newFlaky(2)
	repo := NewMessageRepository(flaky, testGuard(10))

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 3, flaky.calls)
}

func TestWritesAreNotRetried(t *testing.T) {
	flaky := newFlaky(1)
	repo := NewMessageRepository(flaky, testGuard(10))

	err := repo.Create(context.Background(), &domain.Message{ID: "m1", AuthorID: "u1", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1, flaky.calls)
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	guard := testGuard(1)
	repo := NewMessageRepository(memory.NewMemoryMessageRepository(), guard)

	for i := 0; i < 5; i++ {
		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	}
	assert.Equal(t, circuitbreaker.StateClosed, guard.Stats().State)
	assert.NoError(t, guard.HealthCheck(context.Background()))
}

func TestOpenBreakerReportsStoreUnavailable(t *testing.T) {
	guard := testGuard(1)
	flaky := newFlaky(100)
	repo := NewMessageRepository(flaky, guard)

	err := repo.Create(context.Background(), &domain.Message{ID: "m1"})
	assert.ErrorIs(t, err, errDown)

	err = repo.Create(context.Background(), &domain.Message{ID: "m2"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, flaky.calls)

	_, err = repo.Count(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 1, flaky.calls)

	assert.ErrorIs(t, guard.HealthCheck(context.Background()), domain.ErrStoreUnavailable)
}

func TestUserRepositoryPassesDomainErrors(t *testing.T) {
	repo := NewUserRepository(memory.NewMemoryUserRepository(), testGuard(1))
	ctx := context.Background()

	u := &domain.User{ID: "u1", Email: "a@example.com", Role: domain.RoleUser, IsActive: true}
	require.NoError(t, repo.Create(ctx, u))
	assert.ErrorIs(t, repo.Create(ctx, &domain.User{ID: "u2", Email: "a@example.com"}), domain.ErrEmailTaken)

	_, err := repo.GetByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	n, err := repo.Count(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
