package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/repository"
)

const accountColumns = `id, username, password_hash, role, is_active, full_name, email, phone,
		last_login_at, created_at, updated_at`

// accountRepository implements repository.AccountRepository.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(db *DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (username, password_hash, role, is_active, full_name, email, phone,
			last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		account.Username,
		account.SecretHash,
		string(account.Role),
		account.IsActive,
		account.FullName,
		account.Email,
		account.Phone,
		account.LastLoginAt,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", repository.ErrConflict, account.Username)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID.
func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username.
func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, username))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}
	return account, nil
}

// ExistsByUsername checks if another account uses the username.
func (r *accountRepository) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1 AND id <> $2)`,
		username, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

// Update updates an existing account.
func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET username = $1, password_hash = $2, role = $3, is_active = $4,
			full_name = $5, email = $6, phone = $7, updated_at = $8
		WHERE id = $9
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		account.Username,
		account.SecretHash,
		string(account.Role),
		account.IsActive,
		account.FullName,
		account.Email,
		account.Phone,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: username %q", repository.ErrConflict, account.Username)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	return requireAffected(tag)
}

// UpdateSecretHash replaces the password hash.
func (r *accountRepository) UpdateSecretHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		hash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	return requireAffected(tag)
}

// UpdateActivation sets the is_active flag.
func (r *accountRepository) UpdateActivation(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update activation: %w", err)
	}
	return requireAffected(tag)
}

// TouchLastLogin records a successful authentication.
func (r *accountRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE accounts SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireAffected(tag)
}

// Delete deletes an account by ID.
func (r *accountRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(tag)
}

// List returns accounts ordered by username.
func (r *accountRepository) List(ctx context.Context, opts repository.AccountListOptions) (*repository.ListResult[domain.Account], error) {
	var role *string
	if opts.Role != nil {
		s := string(*opts.Role)
		role = &s
	}

	var total int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accounts WHERE ($1::text IS NULL OR role = $1)`, role,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE ($1::text IS NULL OR role = $1)
		ORDER BY username
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool.Query(ctx, query, role, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return &repository.ListResult[domain.Account]{
		Items:   accounts,
		Total:   total,
		Offset:  opts.Offset,
		Limit:   opts.Limit,
		HasMore: int64(opts.Offset+len(accounts)) < total,
	}, nil
}

// Count returns the number of stored accounts.
func (r *accountRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return total, nil
}

// scanAccount reads the columns listed in accountColumns.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	account := &domain.Account{}
	var role string

	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.SecretHash,
		&role,
		&account.IsActive,
		&account.FullName,
		&account.Email,
		&account.Phone,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = domain.Role(role)
	return account, nil
}

// requireAffected maps a zero-row write to ErrNotFound.
func requireAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure accountRepository implements repository.AccountRepository.
var _ repository.AccountRepository = (*accountRepository)(nil)
