package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/repository"
)

func init() {
	repository.Register("postgres", Open)
}

// Open connects to the PostgreSQL credential store described by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &repository.CreateRepositoriesResult{
		Repos: &repository.Repositories{
			Account: NewAccountRepository(db),
		},
		Database: db,
		Migrator: db,
	}, nil
}
