package domain

import (
	"time"
)

const (
	// DefaultMaxFailedAttempts is the failure count that triggers a lockout.
	DefaultMaxFailedAttempts = 5

	// DefaultLockoutDuration is how long a lockout lasts.
	DefaultLockoutDuration = 30 * time.Minute
)

// LockoutRecord tracks failed authentications for one identifier.
// Records are keyed by the identifier as typed, before any account lookup.
type LockoutRecord struct {
	FailedCount int        `json:"failed_count"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
}

// IsLocked reports whether a lock timestamp is present.
func (r *LockoutRecord) IsLocked() bool {
	return r.LockedAt != nil
}

// LockExpired reports whether the lock has outlived window at now.
func (r *LockoutRecord) LockExpired(now time.Time, window time.Duration) bool {
	return r.LockedAt != nil && now.Sub(*r.LockedAt) > window
}

// RemainingLock returns the lock time left at now, never negative.
func (r *LockoutRecord) RemainingLock(now time.Time, window time.Duration) time.Duration {
	if r.LockedAt == nil {
		return 0
	}
	left := window - now.Sub(*r.LockedAt)
	if left < 0 {
		return 0
	}
	return left
}

// CeilMinutes converts d to whole minutes, rounding up.
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
