// Package lock serialises work on shared keys. A standalone terminal uses
// MemoryLocker; terminals sharing lockout records through Redis use the
// Redis lock from internal/cache/redis.
package lock

import (
	"context"
	"time"
)

// Locker hands out expiring, named locks.
// Every acquire variant reports false without error when the key is held elsewhere.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)
	// Release reports false when the key was not held by this locker.
	Release(ctx context.Context, key string) (bool, error)
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock binds one key to a Locker and remembers whether this caller holds it.
type Lock struct {
	locker Locker
	key    string
	held   bool
}

func NewLock(locker Locker, key string) *Lock {
	return &Lock{locker: locker, key: key}
}

func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.locker.Acquire(ctx, l.key, ttl)
	l.held = ok && err == nil
	return l.held, err
}

func (l *Lock) AcquireWithRetry(ctx context.Context, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	ok, err := l.locker.AcquireWithRetry(ctx, l.key, ttl, maxRetries, retryDelay)
	l.held = ok && err == nil
	return l.held, err
}

// Release is a no-op unless the lock is held.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	_, err := l.locker.Release(ctx, l.key)
	return err
}

func (l *Lock) Held() bool { return l.held }

// Keys names the locks used by the services.
var Keys keyspace

type keyspace struct{}

// Lockout guards the lockout record of one login identifier.
func (keyspace) Lockout(identifier string) string { return "lock:lockout:" + identifier }

// Bootstrap guards first-run administrator creation.
func (keyspace) Bootstrap() string { return "lock:bootstrap:admin" }

// Backup guards snapshot creation, restore and pruning.
func (keyspace) Backup() string { return "lock:backup" }
