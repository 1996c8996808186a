package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"murmur/internal/core/ports"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Healthy reports whether every check passed.
func (s HealthStatus) Healthy() bool {
	return s.Status == StatusHealthy
}

// HealthChecker runs named dependency checks for the readiness endpoint.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []HealthCheck

	lastMu sync.RWMutex
	last   *HealthStatus
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks = append(h.checks, HealthCheck{Name: name, Check: check, Timeout: timeout})
	sort.Slice(h.checks, func(i, j int) bool { return h.checks[i].Name < h.checks[j].Name })
}

// AddStoreCheck registers a check backed by anything that can ping itself.
func (h *HealthChecker) AddStoreCheck(name string, store ports.HealthChecker, timeout time.Duration) {
	h.AddCheck(name, store.HealthCheck, timeout)
}

// AddMessageStoreCheck verifies the message store answers a cheap query.
func (h *HealthChecker) AddMessageStoreCheck(repo ports.MessageRepository, timeout time.Duration) {
	h.AddCheck("messages", func(ctx context.Context) error {
		_, err := repo.Count(ctx)
		return err
	}, timeout)
}

// CheckAll runs every check once, each under its own timeout.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		checkCtx := ctx
		cancel := func() {}
		if check.Timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, check.Timeout)
		}
		err := check.Check(checkCtx)
		cancel()

		if err != nil {
			status.Status = StatusUnhealthy
			status.Checks[check.Name] = err.Error()
		} else {
			status.Checks[check.Name] = StatusHealthy
		}
	}

	h.lastMu.Lock()
	h.last = &status
	h.lastMu.Unlock()

	return status
}

// Last returns the most recent result, if any check has run.
func (h *HealthChecker) Last() (HealthStatus, bool) {
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	if h.last == nil {
		return HealthStatus{}, false
	}
	return *h.last, true
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Healthy()
}

// StartBackgroundChecks refreshes Last every interval until ctx is done.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.CheckAll(ctx)
			}
		}
	}()
}
