package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prn-tf/medstore/internal/domain"
)

// CacheLockoutStore implements LockoutStore on top of any Cache.
// Records are stored as JSON under CacheKey.Lockout.
type CacheLockoutStore struct {
	cache Cache
}

// NewCacheLockoutStore creates a lockout store backed by cache.
func NewCacheLockoutStore(cache Cache) *CacheLockoutStore {
	return &CacheLockoutStore{cache: cache}
}

// Get returns the stored record or ErrNotFound.
func (s *CacheLockoutStore) Get(ctx context.Context, identifier string) (*domain.LockoutRecord, error) {
	data, err := s.cache.Get(ctx, CacheKey{}.Lockout(identifier))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read lockout record: %w", err)
	}

	var record domain.LockoutRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode lockout record: %w", err)
	}
	return &record, nil
}

// Save stores the record as JSON.
func (s *CacheLockoutStore) Save(ctx context.Context, identifier string, record *domain.LockoutRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode lockout record: %w", err)
	}
	if err := s.cache.Set(ctx, CacheKey{}.Lockout(identifier), data, ttl); err != nil {
		return fmt.Errorf("failed to write lockout record: %w", err)
	}
	return nil
}

// Delete removes the record.
func (s *CacheLockoutStore) Delete(ctx context.Context, identifier string) error {
	if err := s.cache.Delete(ctx, CacheKey{}.Lockout(identifier)); err != nil {
		return fmt.Errorf("failed to delete lockout record: %w", err)
	}
	return nil
}

// Ensure CacheLockoutStore implements LockoutStore.
var _ LockoutStore = (*CacheLockoutStore)(nil)
