package sqlite

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/repository"
)

func init() {
	repository.Register("sqlite", Open)
}

// Open opens the SQLite credential store described by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	sqliteCfg := DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sqliteCfg.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sqliteCfg.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		sqliteCfg.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		sqliteCfg.SynchronousMode = cfg.SynchronousMode
	}
	if cfg.Path == ":memory:" {
		sqliteCfg.ConnMaxLifetime = 0
	} else if cfg.ConnMaxLifetime > 0 {
		sqliteCfg.ConnMaxLifetime = cfg.ConnMaxLifetime
	} else {
		sqliteCfg.ConnMaxLifetime = time.Hour
	}

	db, err := NewDB(ctx, sqliteCfg, logger)
	if err != nil {
		return nil, err
	}

	return &repository.CreateRepositoriesResult{
		Repos: &repository.Repositories{
			Account: NewAccountRepository(db),
		},
		Database:    db,
		Migrator:    db,
		Snapshotter: db,
	}, nil
}
