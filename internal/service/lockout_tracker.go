package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/repository"
)

const (
	lockoutLockTTL        = 5 * time.Second
	lockoutLockRetries    = 50
	lockoutLockRetryDelay = 20 * time.Millisecond
)

// LockoutConfig holds the brute-force thresholds.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// LockoutTracker counts failed authentications per identifier and locks an
// identifier once the count reaches the threshold.
//
// Records are keyed by the identifier as typed, so unknown usernames are
// throttled exactly like real ones. Expired locks are cleared lazily on the
// next evaluation.
type LockoutTracker struct {
	store  repository.LockoutStore
	locker lock.Locker
	logger zerolog.Logger
	nowFn  func() time.Time

	// mu serialises record read-modify-write within this process; locker
	// extends that to every process sharing the store.
	mu sync.Mutex

	settingsMu        sync.RWMutex
	maxFailedAttempts int
	lockoutDuration   time.Duration
}

// NewLockoutTracker creates a LockoutTracker. A nil locker disables cross-process locking.
func NewLockoutTracker(store repository.LockoutStore, locker lock.Locker, cfg LockoutConfig, logger zerolog.Logger) *LockoutTracker {
	if store == nil {
		panic("service: nil lockout store")
	}
	if locker == nil {
		locker = lock.NewNoOpLocker()
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = domain.DefaultMaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = domain.DefaultLockoutDuration
	}

	return &LockoutTracker{
		store:             store,
		locker:            locker,
		logger:            logger.With().Str("service", "lockout").Logger(),
		nowFn:             time.Now,
		maxFailedAttempts: cfg.MaxFailedAttempts,
		lockoutDuration:   cfg.LockoutDuration,
	}
}

// SetClock replaces the time source. Intended for tests.
func (t *LockoutTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nowFn = now
}

// MaxFailedAttempts returns the failure count that triggers a lockout.
func (t *LockoutTracker) MaxFailedAttempts() int {
	t.settingsMu.RLock()
	defer t.settingsMu.RUnlock()
	return t.maxFailedAttempts
}

// LockoutDuration returns how long a lockout lasts.
func (t *LockoutTracker) LockoutDuration() time.Duration {
	t.settingsMu.RLock()
	defer t.settingsMu.RUnlock()
	return t.lockoutDuration
}

// SetMaxFailedAttempts changes the lockout threshold.
func (t *LockoutTracker) SetMaxFailedAttempts(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: max failed attempts must be positive, got %d", domain.ErrInvalidInput, n)
	}
	t.settingsMu.Lock()
	t.maxFailedAttempts = n
	t.settingsMu.Unlock()
	return nil
}

// SetLockoutMinutes changes the lockout window.
func (t *LockoutTracker) SetLockoutMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: lockout minutes must be positive, got %d", domain.ErrInvalidInput, minutes)
	}
	t.settingsMu.Lock()
	t.lockoutDuration = time.Duration(minutes) * time.Minute
	t.settingsMu.Unlock()
	return nil
}

// IsLocked reports whether identifier is currently locked. A lock older than the
// window is cleared before returning false.
func (t *LockoutTracker) IsLocked(ctx context.Context, identifier string) (bool, error) {
	remaining, err := t.Status(ctx, identifier)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// RemainingLockMinutes returns the lock time left for identifier, rounded up.
// It returns 0 when the identifier is not locked.
func (t *LockoutTracker) RemainingLockMinutes(ctx context.Context, identifier string) (int, error) {
	remaining, err := t.Status(ctx, identifier)
	if err != nil {
		return 0, err
	}
	return domain.CeilMinutes(remaining), nil
}

// Status returns the lock time left for identifier, or 0 if it is not locked.
// Expired locks are cleared.
func (t *LockoutTracker) Status(ctx context.Context, identifier string) (time.Duration, error) {
	var remaining time.Duration
	err := t.withRecordLock(ctx, identifier, func() error {
		rec, err := t.load(ctx, identifier)
		if err != nil || !rec.IsLocked() {
			return err
		}

		now := t.nowFn()
		window := t.LockoutDuration()
		if rec.LockExpired(now, window) {
			if err := t.store.Delete(ctx, identifier); err != nil {
				return unavailable(err)
			}
			t.logger.Info().Str("identifier", identifier).Msg("lockout expired")
			return nil
		}

		remaining = rec.RemainingLock(now, window)
		if remaining <= 0 {
			// Exactly at the boundary the lock still holds.
			remaining = time.Nanosecond
		}
		return nil
	})
	return remaining, err
}

// RecordFailure increments the failure count for identifier and locks it when the
// count reaches the threshold. It returns the updated record.
func (t *LockoutTracker) RecordFailure(ctx context.Context, identifier string) (*domain.LockoutRecord, error) {
	var out domain.LockoutRecord
	err := t.withRecordLock(ctx, identifier, func() error {
		rec, err := t.load(ctx, identifier)
		if err != nil {
			return err
		}

		rec.FailedCount++
		if rec.FailedCount >= t.MaxFailedAttempts() && rec.LockedAt == nil {
			now := t.nowFn()
			rec.LockedAt = &now
			t.logger.Warn().
				Str("identifier", identifier).
				Int("failed_count", rec.FailedCount).
				Msg("identifier locked after repeated failures")
		}

		if err := t.store.Save(ctx, identifier, rec, 0); err != nil {
			return unavailable(err)
		}
		out = *rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordSuccess clears any failures and lock for identifier.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, identifier string) error {
	return t.withRecordLock(ctx, identifier, func() error {
		if err := t.store.Delete(ctx, identifier); err != nil {
			return unavailable(err)
		}
		return nil
	})
}

// load returns the stored record, or an empty one if none exists.
func (t *LockoutTracker) load(ctx context.Context, identifier string) (*domain.LockoutRecord, error) {
	rec, err := t.store.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.LockoutRecord{}, nil
		}
		return nil, unavailable(err)
	}
	return rec, nil
}

func (t *LockoutTracker) withRecordLock(ctx context.Context, identifier string, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l := lock.NewLock(t.locker, lock.Keys.Lockout(identifier))
	acquired, err := l.AcquireWithRetry(ctx, lockoutLockTTL, lockoutLockRetries, lockoutLockRetryDelay)
	if err != nil {
		return unavailable(err)
	}
	if !acquired {
		return unavailable(repository.ErrLockNotAcquired)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			t.logger.Warn().Err(err).Str("identifier", identifier).Msg("failed to release lockout lock")
		}
	}()

	return fn()
}
