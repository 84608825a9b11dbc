// Package storage defines the destination for credential database snapshots.
// Snapshots are written once under a time-derived key and never modified.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrSnapshotNotFound is returned when a key does not exist at the destination.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Backend stores snapshot archives by key.
// Implementations include S3-compatible object stores.
type Backend interface {
	// Store writes size bytes from reader under key.
	// metadata is attached to the stored object where the backend supports it.
	Store(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error

	// Retrieve returns the stored content and its metadata.
	// The caller must close the returned reader.
	// Returns ErrSnapshotNotFound if key doesn't exist.
	Retrieve(ctx context.Context, key string) (io.ReadCloser, map[string]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
