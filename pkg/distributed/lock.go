package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotHeld is returned by Unlock when the key expired or was taken over.
	ErrNotHeld = errors.New("lock not held by this holder")

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock is a mutex shared by every process talking to one Redis. The holder
// is identified by a random token, so only the holder can release or extend
// the key. While held, the TTL is renewed at half its length.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	// PollInterval is the wait between attempts in Lock.
	PollInterval time.Duration

	mu        sync.Mutex
	stopRenew chan struct{}
	renewDone chan struct{}
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client:       client,
		key:          key,
		token:        uuid.NewString(),
		ttl:          ttl,
		PollInterval: 100 * time.Millisecond,
	}
}

// TryLock makes one attempt to take the lock.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopRenew != nil {
		return false, fmt.Errorf("lock %s already held by this holder", l.key)
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if acquired {
		l.stopRenew = make(chan struct{})
		l.renewDone = make(chan struct{})
		go l.renew(l.stopRenew, l.renewDone)
	}
	return acquired, nil
}

// Lock polls until the lock is taken or ctx ends.
func (l *Lock) Lock(ctx context.Context) error {
	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for lock %s: %w", l.key, ctx.Err())
		case <-time.After(l.PollInterval):
		}
	}
}

// Unlock stops renewal and deletes the key if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	stop, done := l.stopRenew, l.renewDone
	l.stopRenew, l.renewDone = nil, nil
	l.mu.Unlock()

	if stop == nil {
		return ErrNotHeld
	}
	close(stop)
	<-done

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lock) renew(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/2)
			n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				// lost it; Unlock will report ErrNotHeld
				return
			}
		}
	}
}
