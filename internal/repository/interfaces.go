// Package repository defines data access interfaces for medstore.
// These interfaces abstract the credential store and the lockout store, allowing for
// different implementations (SQLite, PostgreSQL, Redis, in-memory for testing) while
// keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/medstore/internal/domain"
)

// =============================================================================
// Account Repository (Credential Store)
// =============================================================================

// AccountRepository defines the interface for account data access.
// Implementations return ErrNotFound and ErrConflict for the corresponding
// conditions; every other error is an infrastructure fault.
type AccountRepository interface {
	// Create inserts a new account and sets its ID.
	// Returns ErrConflict if the username is taken.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id int64) (*domain.Account, error)

	// GetByUsername retrieves an account by exact username.
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// ExistsByUsername checks whether another account already uses the username.
	// excludeID is ignored when 0.
	ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error)

	// Update writes the profile, role, activation and secret hash of an existing account.
	// Returns ErrConflict if the new username is taken.
	Update(ctx context.Context, account *domain.Account) error

	// UpdateSecretHash replaces only the secret hash.
	UpdateSecretHash(ctx context.Context, id int64, hash string) error

	// UpdateActivation sets the is_active flag.
	UpdateActivation(ctx context.Context, id int64, active bool) error

	// TouchLastLogin records a successful authentication.
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error

	// Delete removes an account by ID.
	Delete(ctx context.Context, id int64) error

	// List returns accounts ordered by username.
	List(ctx context.Context, opts AccountListOptions) (*ListResult[domain.Account], error)

	// Count returns the number of stored accounts.
	Count(ctx context.Context) (int64, error)
}

// AccountListOptions filters and paginates List.
type AccountListOptions struct {
	ListOptions

	// Role restricts the result to one role when set.
	Role *domain.Role
}

// =============================================================================
// Lockout Store
// =============================================================================

// LockoutStore persists failed-authentication records keyed by raw identifier.
type LockoutStore interface {
	// Get returns the record for identifier, or ErrNotFound.
	Get(ctx context.Context, identifier string) (*domain.LockoutRecord, error)

	// Save stores the record. ttl bounds how long an idle record is kept; 0 keeps it forever.
	Save(ctx context.Context, identifier string, record *domain.LockoutRecord, ttl time.Duration) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, identifier string) error
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int

	// HasMore indicates if there are more items.
	HasMore bool
}
