package distributed

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("MURMUR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MURMUR_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLock_ExclusiveAndReleasable(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "murmur:test:lock:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key) })

	first := NewLock(client, key, time.Second)
	second := NewLock(client, key, time.Second)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// the renewer keeps the key alive past its ttl
	time.Sleep(1500 * time.Millisecond)
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, second.Unlock(ctx), ErrNotHeld)
	require.NoError(t, first.Unlock(ctx))
	assert.ErrorIs(t, first.Unlock(ctx), ErrNotHeld)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, second.Lock(waitCtx))
	require.NoError(t, second.Unlock(ctx))
}

func TestLock_SerializesHolders(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	key := "murmur:test:lock:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key) })

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := NewLock(client, key, 2*time.Second)
			l.PollInterval = 10 * time.Millisecond
			waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if !assert.NoError(t, l.Lock(waitCtx)) {
				return
			}
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(20 * time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, l.Unlock(ctx))
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
}
