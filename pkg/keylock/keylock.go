// Package keylock provides mutual exclusion scoped to a string key.
package keylock

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock serializes callers that use the same key. Entries are dropped once
// no caller holds or waits for them.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*lockEntry)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *KeyLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
