// Package memory provides an in-process repository.Cache.
// It backs the lockout store of a standalone terminal where Redis is not configured.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/prn-tf/medstore/internal/repository"
)

const sweepInterval = time.Minute

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache implements repository.Cache in process memory.
// Values are copied on the way in and out.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	nowFn   func() time.Time
	stopCh  chan struct{}
	stopped bool
}

// NewCache creates a cache and starts its expiry sweeper. Call Stop to end it.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		nowFn:   time.Now,
		stopCh:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

// NewUnsweptCache creates a cache without a sweeper goroutine. Expired entries
// are invisible to reads but stay in memory until overwritten or deleted, so it
// suits stores whose entries are deleted explicitly. Stop is a no-op.
func NewUnsweptCache() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		nowFn:   time.Now,
		stopCh:  make(chan struct{}),
	}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := c.nowFn()
			for key, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Stop ends the sweeper. It is safe to call more than once.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.nowFn()
	n := 0
	for _, e := range c.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (c *Cache) newEntry(value []byte, ttl time.Duration) entry {
	e := entry{value: bytes.Clone(value)}
	if e.value == nil {
		e.value = []byte{}
	}
	if ttl > 0 {
		e.expiresAt = c.nowFn().Add(ttl)
	}
	return e
}

// Get returns the value of key or repository.ErrCacheMiss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.nowFn()) {
		return nil, repository.ErrCacheMiss
	}
	return bytes.Clone(e.value), nil
}

// Set stores value under key. A ttl of zero or less never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = c.newEntry(value, ttl)
	return nil
}

// SetNX stores value only if key is absent or expired.
func (c *Cache) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !e.expired(c.nowFn()) {
		return false, nil
	}
	c.entries[key] = c.newEntry(value, ttl)
	return true, nil
}

// Delete removes key. Missing keys are not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Exists reports whether key holds an unexpired value.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	return ok && !e.expired(c.nowFn()), nil
}

var _ repository.Cache = (*Cache)(nil)
