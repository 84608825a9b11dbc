// Package sqlite is the embedded credential store of a standalone terminal,
// built on the cgo-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

// Config holds connection and pragma settings.
type Config struct {
	Path            string // file path or ":memory:"
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string
	BusyTimeout     int // milliseconds
	CacheSize       int // negative values are KiB
	SynchronousMode string
}

// DefaultConfig suits one terminal writing through a single connection.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		JournalMode:     "WAL",
		BusyTimeout:     5000,
		CacheSize:       -2000,
		SynchronousMode: "NORMAL",
	}
}

// DSN encodes the pragmas into the connection string so every pooled
// connection gets them.
func (c Config) DSN() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout))
	q.Add("_pragma", "foreign_keys(1)")
	if c.JournalMode != "" && c.Path != memoryPath {
		q.Add("_pragma", "journal_mode("+c.JournalMode+")")
	}
	if c.CacheSize != 0 {
		q.Add("_pragma", fmt.Sprintf("cache_size(%d)", c.CacheSize))
	}
	if c.SynchronousMode != "" {
		q.Add("_pragma", "synchronous("+c.SynchronousMode+")")
	}
	return "file:" + c.Path + "?" + q.Encode()
}

// DB is an open credential database.
type DB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewDB opens the database, creating its parent directory when needed.
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	if cfg.Path != memoryPath {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	logger.Info().Str("path", cfg.Path).Str("journal_mode", cfg.JournalMode).Msg("credential database opened")
	return &DB{db: sqlDB, logger: logger}, nil
}

func (db *DB) Close() error {
	db.logger.Info().Msg("closing credential database")
	return db.db.Close()
}

func (db *DB) Ping(ctx context.Context) error { return db.db.PingContext(ctx) }

// Health is Ping; the health endpoint reports it as the database status.
func (db *DB) Health(ctx context.Context) error { return db.Ping(ctx) }

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// Snapshot writes a consistent copy of the database to dest with VACUUM INTO.
// dest must not exist yet.
func (db *DB) Snapshot(ctx context.Context, dest string) error {
	if _, err := db.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("snapshot credential database: %w", err)
	}
	return nil
}
