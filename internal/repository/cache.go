package repository

import (
	"context"
	"time"

	"github.com/prn-tf/medstore/internal/lock"
)

// Cache is the byte-oriented key/value store behind LockoutStore.
// cache/memory serves a single terminal, cache/redis a shared deployment.
// A ttl of zero stores the value without expiry.
type Cache interface {
	// Get returns ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// DistributedLock is a lock.Locker whose locks are visible to every terminal
// sharing the backing store.
type DistributedLock interface {
	lock.Locker
}

// CacheKey names cache entries.
type CacheKey struct{}

// Lockout holds the JSON lockout record of a login identifier.
func (CacheKey) Lockout(identifier string) string {
	return "auth:lockout:" + identifier
}
