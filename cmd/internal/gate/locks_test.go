package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	l := newKeyedLocks(time.Second)
	ctx := context.Background()

	release, err := l.acquire(ctx, "visit-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		r2, err := l.acquire(ctx, "visit-1")
		require.NoError(t, err)
		close(acquired)
		r2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while lock is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	wg.Wait()
}

func TestKeyedLocks_IndependentKeys(t *testing.T) {
	l := newKeyedLocks(time.Second)
	ctx := context.Background()

	r1, err := l.acquire(ctx, "visit-1")
	require.NoError(t, err)
	r2, err := l.acquire(ctx, "visit-2")
	require.NoError(t, err)
	r1()
	r2()
}

func TestKeyedLocks_BoundedWaitReturnsBusy(t *testing.T) {
	l := newKeyedLocks(30 * time.Millisecond)
	ctx := context.Background()

	release, err := l.acquire(ctx, "visit-1")
	require.NoError(t, err)
	defer release()

	_, err = l.acquire(ctx, "visit-1")
	require.ErrorIs(t, err, ErrBusy)
}

func TestKeyedLocks_ContextCancellation(t *testing.T) {
	l := newKeyedLocks(time.Minute)

	release, err := l.acquire(context.Background(), "visit-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.acquire(ctx, "visit-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedLocks_EntryReclaimed(t *testing.T) {
	l := newKeyedLocks(time.Second)

	release, err := l.acquire(context.Background(), "visit-1")
	require.NoError(t, err)
	release()

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Empty(t, l.entries)
}
