package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"murmur/internal/infrastructure/repositories/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.MessageCommitted("sent")
	c.MessageCommitted("sent")
	c.MessageCommitted("deleted")
	c.SetOnlineUsers(3)
	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.DeliveryDropped()
	c.ObserveStoreLatency("create", 2*time.Millisecond)
	c.ObserveHTTPRequest("GET", "/api/messages", "200", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues("deleted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.onlineUsers))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.connectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.connectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.deliveriesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/api/messages", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["murmur_store_operation_duration_seconds"])
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	_, ok := h.Last()
	assert.False(t, ok)

	h.AddMessageStoreCheck(memory.NewMemoryMessageRepository(), time.Second)
	h.AddStoreCheck("store", pingFunc(func(ctx context.Context) error { return nil }), time.Second)

	status := h.CheckAll(context.Background())
	assert.True(t, status.Healthy())
	assert.Equal(t, StatusHealthy, status.Checks["messages"])
	assert.True(t, h.IsReady(context.Background()))

	h.AddStoreCheck("redis", pingFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") }), time.Second)
	status = h.CheckAll(context.Background())
	assert.False(t, status.Healthy())
	assert.Equal(t, "dial tcp: refused", status.Checks["redis"])

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, last.Status)
}

func TestHealthChecker_TimeoutApplied(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.False(t, status.Healthy())
	assert.Contains(t, status.Checks["slow"], "deadline")
}
