package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/repository"
)

func TestExecute_UpThenStatus(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewFactory(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zerolog.Nop()).Create(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Database.Close() })

	var out bytes.Buffer
	require.NoError(t, execute(ctx, store.Migrator, "status", &out))
	require.Contains(t, out.String(), "schema version: 0")
	require.Contains(t, out.String(), "pending migrations")

	out.Reset()
	require.NoError(t, execute(ctx, store.Migrator, "up", &out))
	require.Contains(t, out.String(), "no pending migrations")
	require.NotContains(t, out.String(), "schema version: 0")

	require.Error(t, execute(ctx, store.Migrator, "down", &out))
}
