package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// migrationLockID is the advisory lock key that keeps two terminals from
// migrating the shared database at once.
const migrationLockID int64 = 0x6d656473746f7265

type migration struct {
	version int
	file    string
}

func embeddedMigrations() ([]migration, error) {
	files, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	out := make([]migration, 0, len(files))
	for _, path := range files {
		file := strings.TrimPrefix(path, "migrations/")
		num, _, _ := strings.Cut(file, "_")
		version, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix", file)
		}
		out = append(out, migration{version: version, file: file})
	}
	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

// Version returns the highest applied schema version, 0 on a fresh database.
func (db *DB) Version(ctx context.Context) (int, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Pool.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}
	var v int
	if err := db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// Pending lists the embedded migration files newer than the applied version.
func (db *DB) Pending(ctx context.Context) ([]string, error) {
	current, err := db.Version(ctx)
	if err != nil {
		return nil, err
	}
	all, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range all {
		if m.version > current {
			names = append(names, m.file)
		}
	}
	return names, nil
}

// Migrate applies pending migrations, one transaction each, under an advisory lock.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Version(ctx); err != nil {
		return err
	}
	all, err := embeddedMigrations()
	if err != nil {
		return err
	}
	for _, m := range all {
		applied, err := db.apply(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			db.logger.Info().Int("version", m.version).Str("file", m.file).Msg("migration applied")
		}
	}
	return nil
}

// apply runs one migration unless another terminal already has.
func (db *DB) apply(ctx context.Context, m migration) (applied bool, err error) {
	script, err := migrationsFS.ReadFile("migrations/" + m.file)
	if err != nil {
		return false, err
	}
	err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return err
		}
		var done bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&done); err != nil {
			return err
		}
		if done {
			return nil
		}
		if _, err := tx.Exec(ctx, string(script)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply migration %d: %w", m.version, err)
	}
	return applied, nil
}
