package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLocker(t *testing.T) (*MemoryLocker, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	m := NewMemoryLocker()
	m.mu.Lock()
	m.nowFn = clock.Now
	m.mu.Unlock()
	t.Cleanup(m.Stop)
	return m, clock
}

func TestMemoryLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestLocker(t)

	ok, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	held, err := m.IsHeld(ctx, "k")
	require.NoError(t, err)
	require.True(t, held)

	released, err := m.Release(ctx, "k")
	require.NoError(t, err)
	require.True(t, released)

	released, err = m.Release(ctx, "k")
	require.NoError(t, err)
	require.False(t, released)
}

func TestMemoryLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestLocker(t)

	_, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	extended, err := m.Extend(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, extended)

	clock.Advance(45 * time.Second)
	held, err := m.IsHeld(ctx, "k")
	require.NoError(t, err)
	require.True(t, held)

	clock.Advance(15 * time.Second)
	held, err = m.IsHeld(ctx, "k")
	require.NoError(t, err)
	require.False(t, held)

	ok, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLocker_AcquireWithRetry(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestLocker(t)

	_, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	ok, err := m.AcquireWithRetry(ctx, "k", time.Minute, 2, time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = m.Release(context.Background(), "k")
	}()
	ok, err = m.AcquireWithRetry(ctx, "k", time.Minute, 1000, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.AcquireWithRetry(cancelled, "k", time.Minute, 3, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestLocker(t)

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := NewLock(m, Keys.Lockout("pos1"))
			ok, err := l.AcquireWithRetry(ctx, time.Minute, 1000, time.Millisecond)
			if err != nil || !ok {
				return
			}
			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			_ = l.Release(ctx)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside.Load())
}

func TestNoOpLocker(t *testing.T) {
	ctx := context.Background()
	n := NewNoOpLocker()

	ok, err := n.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = n.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	held, err := n.IsHeld(ctx, "k")
	require.NoError(t, err)
	require.False(t, held)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "lock:lockout:pos1", Keys.Lockout("pos1"))
	require.Equal(t, "lock:bootstrap:admin", Keys.Bootstrap())
	require.Equal(t, "lock:backup", Keys.Backup())
}
