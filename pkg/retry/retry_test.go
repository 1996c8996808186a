package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func fastConfig(attempts int) Config {
	return Config{
		Enabled:      true,
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		attempts++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	cfg := fastConfig(5)
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, errPermanent) }

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errPermanent
	})

	assert.Same(t, errPermanent, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_Disabled(t *testing.T) {
	cfg := fastConfig(5)
	cfg.Enabled = false

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return errTransient
	})

	assert.Same(t, errTransient, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastConfig(3), func() error {
		attempts++
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestDo_ReturnsResult(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), fastConfig(3), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errTransient
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCalculateDelay_CapsAndJitter(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 30 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 10*time.Millisecond, calculateDelay(cfg, 0))
	assert.Equal(t, 20*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 30*time.Millisecond, calculateDelay(cfg, 5))

	cfg.Jitter = true
	for i := 0; i < 20; i++ {
		d := calculateDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 15*time.Millisecond)
		assert.LessOrEqual(t, d, 25*time.Millisecond)
	}
}
