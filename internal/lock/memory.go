package lock

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = 30 * time.Second

// MemoryLocker implements Locker inside one process. A standalone terminal
// keeps its lockout records in memory and serialises them with this locker.
// Locks do not survive a restart and are not shared with other terminals.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]time.Time // key -> expiry
	nowFn   func() time.Time
	stopCh  chan struct{}
	stopped bool
}

// NewMemoryLocker creates a locker and starts its expiry sweeper. Call Stop
// to end the sweeper.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		held:   make(map[string]time.Time),
		nowFn:  time.Now,
		stopCh: make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *MemoryLocker) sweep() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := m.nowFn()
			for key, expiry := range m.held {
				if !now.Before(expiry) {
					delete(m.held, key)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (m *MemoryLocker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
}

// liveLocked reports whether key is held and unexpired, dropping it if expired.
// m.mu must be held.
func (m *MemoryLocker) liveLocked(key string) bool {
	expiry, ok := m.held[key]
	if !ok {
		return false
	}
	if !m.nowFn().Before(expiry) {
		delete(m.held, key)
		return false
	}
	return true
}

// Acquire takes key for ttl unless it is already held.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveLocked(key) {
		return false, nil
	}
	m.held[key] = m.nowFn().Add(ttl)
	return true, nil
}

// AcquireWithRetry calls Acquire up to maxRetries+1 times, waiting retryDelay
// between attempts.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return retryAcquire(ctx, func() (bool, error) { return m.Acquire(ctx, key, ttl) }, maxRetries, retryDelay)
}

// Release frees key. It reports false if key was not held.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.held[key]
	delete(m.held, key)
	return ok, nil
}

// Extend resets the expiry of a held key to ttl from now.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked(key) {
		return false, nil
	}
	m.held[key] = m.nowFn().Add(ttl)
	return true, nil
}

// IsHeld reports whether key is currently held.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveLocked(key), nil
}

// retryAcquire runs try until it succeeds, fails, runs out of attempts or ctx ends.
func retryAcquire(ctx context.Context, try func() (bool, error), maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; ; attempt++ {
		acquired, err := try()
		if err != nil || acquired {
			return acquired, err
		}
		if attempt >= maxRetries {
			return false, nil
		}

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

var _ Locker = (*MemoryLocker)(nil)
