// Package postgres is the shared credential store used when several terminals
// authenticate against one account database.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/config"
)

const connectTimeout = 10 * time.Second

// DB owns the pgx pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB connects and pings. Statement tracing is enabled at debug level.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxOpenConns)
	pc.MinConns = int32(cfg.MaxIdleConns)
	pc.MaxConnLifetime = cfg.ConnMaxLifetime
	pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	pc.ConnConfig.ConnectTimeout = connectTimeout
	if logger.GetLevel() <= zerolog.DebugLevel {
		pc.ConnConfig.Tracer = statementTracer{logger: logger}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("credential database connected")
	return &DB{Pool: pool, logger: logger}, nil
}

func (db *DB) Close() error {
	db.Pool.Close()
	db.logger.Info().Msg("credential database pool closed")
	return nil
}

func (db *DB) Ping(ctx context.Context) error   { return db.Pool.Ping(ctx) }
func (db *DB) Health(ctx context.Context) error { return db.Pool.Ping(ctx) }

// statementTracer logs SQL text and timing. Arguments are never logged since
// they carry secret hashes.
type statementTracer struct {
	logger zerolog.Logger
}

type traceStartKey struct{}

func (t statementTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceStartKey{}, time.Now())
}

func (t statementTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	started, ok := ctx.Value(traceStartKey{}).(time.Time)
	if !ok {
		return
	}
	t.logger.Debug().
		Err(data.Err).
		Dur("duration", time.Since(started)).
		Str("command_tag", data.CommandTag.String()).
		Msg("statement executed")
}
