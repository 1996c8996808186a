package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (it item[V]) expired(now time.Time) bool {
	return !now.Before(it.expiresAt)
}

// Cache is a thread-safe in-memory cache with TTL support
type Cache[V any] struct {
	mu          sync.RWMutex
	items       map[string]item[V]
	defaultTTL  time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

// New creates a cache with default TTL. A background goroutine evicts expired
// entries every ttl/2 until Stop is called.
func New[V any](defaultTTL time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:       make(map[string]item[V]),
		defaultTTL:  defaultTTL,
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}
	if defaultTTL > 0 {
		go c.cleanup(defaultTTL / 2)
	}
	return c
}

// Get retrieves a value from cache
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(c.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores a value with the default TTL. A non-positive TTL disables caching.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Delete removes a key from cache
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Invalidate removes every key with the given prefix; "" removes expired entries only.
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, it := range c.items {
		if prefix == "" {
			if it.expired(now) {
				delete(c.items, key)
			}
			continue
		}
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// Size returns the number of stored entries, expired ones included.
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Invalidate("")
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// Loader is a read-through cache. Concurrent misses for one key share a
// single call to the load function.
type Loader[V any] struct {
	cache *Cache[V]
	group singleflight.Group
}

// NewLoader creates a read-through cache with the given TTL.
func NewLoader[V any](ttl time.Duration) *Loader[V] {
	return &Loader[V]{cache: New[V](ttl)}
}

// GetOrLoad returns the cached value for key or calls load and caches a successful result.
func (l *Loader[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	res, err, _ := l.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		l.cache.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Forget drops key so the next GetOrLoad reloads it.
func (l *Loader[V]) Forget(key string) {
	l.group.Forget(key)
	l.cache.Delete(key)
}

// Stop stops the cache cleanup
func (l *Loader[V]) Stop() {
	l.cache.Stop()
}
