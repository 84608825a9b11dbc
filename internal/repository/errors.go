package repository

import "errors"

// Store-level outcomes. Services translate them into domain error kinds.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique username would be duplicated.
	ErrConflict = errors.New("already exists")

	ErrCacheMiss        = errors.New("cache miss")
	ErrCacheUnavailable = errors.New("cache unavailable")
	ErrLockNotAcquired  = errors.New("lock not acquired")
)
