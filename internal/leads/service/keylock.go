package service

import (
	"context"
	"sync"
	"time"

	"leadscore_backend/platform/apperr"
)

// keyLock serializes writers per identity key. Each key owns a one-slot
// channel semaphore that is reference-counted and removed once the last
// waiter releases it, so the map does not grow with the key space.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: map[string]*lockEntry{}}
}

// Acquire blocks until the key's lock is held, the timeout elapses, or the
// context is done. On success it returns the release function; on a bounded
// wait expiring it returns apperr.Timeout so callers can retry.
func (k *keyLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			k.release(key, entry)
		}, nil
	case <-timer.C:
		k.release(key, entry)
		return nil, apperr.Timeout("timed out waiting for lead lock")
	case <-ctx.Done():
		k.release(key, entry)
		return nil, apperr.Wrap(apperr.KindTimeout, "canceled waiting for lead lock", ctx.Err())
	}
}

func (k *keyLock) release(key string, entry *lockEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
