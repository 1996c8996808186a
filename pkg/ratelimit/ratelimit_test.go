package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiter_IsolatesKeys(t *testing.T) {
	l := NewKeyedLimiter(1, 1)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.Same(t, l.Get("a"), l.Get("a"))
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	l := NewKeyedLimiter(1, 1)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Get("old")
	now = now.Add(10 * time.Minute)
	l.Get("fresh")

	assert.Equal(t, 1, l.Sweep(5*time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestPerMinute(t *testing.T) {
	assert.InDelta(t, 1.0, float64(PerMinute(60)), 1e-9)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "10.0.0.1", ClientIP(r))
}
