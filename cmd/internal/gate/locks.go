package gate

import (
	"context"
	"sync"
	"time"
)

// defaultLockWait bounds how long an admission waits for its per-visit lock
// before giving up with ErrBusy.
const defaultLockWait = 2 * time.Second

type lockEntry struct {
	ch   chan struct{} // holds one token when the lock is free
	refs int
}

// keyedLocks hands out one mutex per visit id, created on demand and
// reclaimed when the last waiter leaves.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	wait    time.Duration
}

func newKeyedLocks(wait time.Duration) *keyedLocks {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &keyedLocks{entries: make(map[string]*lockEntry), wait: wait}
}

// acquire takes the lock for key, waiting at most the configured bound.
// The returned release func must be called exactly once.
func (l *keyedLocks) acquire(ctx context.Context, key string) (release func(), err error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case <-e.ch:
		var once sync.Once
		return func() {
			once.Do(func() {
				e.ch <- struct{}{}
				l.put(key, e)
			})
		}, nil
	case <-timer.C:
		l.put(key, e)
		return nil, ErrBusy
	case <-ctx.Done():
		l.put(key, e)
		return nil, ctx.Err()
	}
}

func (l *keyedLocks) put(key string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}
