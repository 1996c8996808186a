package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"murmur/internal/core/domain"
	apperrors "murmur/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testLogger = zap.NewNop().Sugar()

// stubVerifier accepts exactly the tokens it was given.
type stubVerifier struct {
	mu     sync.Mutex
	tokens map[string]domain.Identity
}

func newStubVerifier(ids ...domain.Identity) *stubVerifier {
	v := &stubVerifier{tokens: make(map[string]domain.Identity)}
	for _, id := range ids {
		v.tokens["token-"+string(id.ID)] = id
	}
	return v
}

func (v *stubVerifier) Authenticate(_ context.Context, credential string) (domain.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id, ok := v.tokens[credential]
	if !ok {
		return domain.Identity{}, errors.New("unknown token")
	}
	return id, nil
}

func tokenFor(id domain.Identity) string {
	return "token-" + string(id.ID)
}

func identity(id, email string, role domain.Role) domain.Identity {
	return domain.Identity{ID: domain.UserID(id), Email: email, Name: id, Role: role, IsActive: true}
}

type event struct {
	name    string
	payload interface{}
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []event
}

func (b *recordingBroadcaster) Broadcast(name string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{name, payload})
}

func (b *recordingBroadcaster) all() []event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]event(nil), b.events...)
}

func (b *recordingBroadcaster) named(name string) []event {
	var out []event
	for _, e := range b.all() {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type recordingMetrics struct {
	nopMetrics
	mu        sync.Mutex
	committed map[string]int
	online    []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{committed: make(map[string]int)}
}

func (m *recordingMetrics) MessageCommitted(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed[action]++
}

func (m *recordingMetrics) SetOnlineUsers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = append(m.online, n)
}

type recordingTerminator struct {
	mu         sync.Mutex
	terminated []domain.ConnectionID
}

func (t *recordingTerminator) Terminate(connID domain.ConnectionID, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminated = append(t.terminated, connID)
}

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepository) Update(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) Delete(ctx context.Context, id domain.MessageID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMessageRepository) ListNewest(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepository) CountByAuthor(ctx context.Context) (map[domain.UserID]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.UserID]int64), args.Error(1)
}

func requireCode(t *testing.T, err error, code apperrors.ErrorCode, status int) {
	t.Helper()
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr, "expected an AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.HTTPStatus)
}
