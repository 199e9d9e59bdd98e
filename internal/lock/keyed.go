// Package lock serializes mutating operations per order id. Operations on
// different ids proceed independently; there is no global lock.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// ErrAcquireTimeout is returned when the per-key lock could not be acquired
// before the context expired. It is retryable.
var ErrAcquireTimeout = fmt.Errorf("%w: lock acquisition timed out", order.ErrConcurrency)

type entry struct {
	sem  chan struct{} // capacity 1
	refs int
}

// KeyedMutex provides per-key mutual exclusion with context-bounded acquire.
// Idle keys are evicted so the map does not grow with the order history.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Acquire blocks until the key's lock is held or ctx is done. On success it
// returns a release function that must be called exactly once.
func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.put(key, e)
		}, nil
	case <-ctx.Done():
		k.put(key, e)
		return nil, ErrAcquireTimeout
	}
}

// TryAcquire attempts to take the lock without blocking.
func (k *KeyedMutex) TryAcquire(key string) (func(), bool) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			k.put(key, e)
		}, true
	default:
		k.put(key, e)
		return nil, false
	}
}

func (k *KeyedMutex) put(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
