package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTimeout is the idle window applied when none is configured.
const DefaultSessionTimeout = 480 * time.Minute

// Session is the runtime record of who is signed in and since when.
type Session struct {
	// ID identifies the session; bearer tokens are bound to it.
	ID uuid.UUID

	// Account is a private snapshot taken at login.
	Account *Account

	// StartedAt is when authentication succeeded.
	StartedAt time.Time

	// LastActivityAt is bumped by explicit refreshes.
	LastActivityAt time.Time
}

// NewSession starts a session for a copy of account.
func NewSession(account *Account, now time.Time) *Session {
	return &Session{
		ID:             uuid.New(),
		Account:        account.Clone(),
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// IsExpired reports whether the session has been idle for longer than timeout.
// Idle time exactly equal to timeout is still alive.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}

// Remaining returns the idle time left before expiry, never negative.
func (s *Session) Remaining(now time.Time, timeout time.Duration) time.Duration {
	left := timeout - now.Sub(s.LastActivityAt)
	if left < 0 {
		return 0
	}
	return left
}

// Touch records activity at now.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}
