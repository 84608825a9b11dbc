// Package app wires the credential store, lockout state, audit trail and
// services from configuration. The server and the admin CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/cache/memory"
	rediscache "github.com/prn-tf/medstore/internal/cache/redis"
	"github.com/prn-tf/medstore/internal/config"
	"github.com/prn-tf/medstore/internal/events"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/metrics"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
	"github.com/prn-tf/medstore/internal/repository"
	"github.com/prn-tf/medstore/internal/service"
	"github.com/prn-tf/medstore/internal/storage"

	// Credential store drivers register themselves.
	_ "github.com/prn-tf/medstore/internal/repository/postgres"
	_ "github.com/prn-tf/medstore/internal/repository/sqlite"
)

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *repository.CreateRepositoriesResult
	Auth     *service.AuthService
	Registry *prometheus.Registry
	Metrics  *metrics.AuthMetrics

	locker    lock.Locker
	publisher events.Publisher
	closers   []func() error
}

// Options adjusts wiring per binary.
type Options struct {
	// Migrate applies pending schema migrations after opening the store.
	Migrate bool
}

// New opens the credential store and builds the authentication service.
// Close must be called when New succeeds.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: metrics.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	a.Metrics = metrics.NewAuthMetrics(a.Registry)

	a.Store, err = repository.NewFactory(cfg.Database, logger).Create(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Database.Close)

	if opts.Migrate {
		if err := a.Store.Migrator.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	lockouts, err := a.lockoutState(ctx)
	if err != nil {
		return nil, err
	}

	a.publisher, err = newPublisher(cfg.Events, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.publisher.Close)

	a.Auth = service.NewAuthService(service.AuthDependencies{
		Accounts:  a.Store.Repos.Account,
		Lockouts:  lockouts,
		Hasher:    crypto.NewBcryptHasher(cfg.Auth.BcryptCost),
		Locker:    a.locker,
		Publisher: a.publisher,
		Metrics:   a.Metrics,
		Logger:    logger,
		Config: service.AuthConfig{
			SessionTimeout:    cfg.Auth.SessionTimeout,
			MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
			LockoutDuration:   cfg.Auth.LockoutDuration,
		},
	})

	logger.Info().
		Str("driver", cfg.Database.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Str("events", cfg.Events.Driver).
		Msg("credential store opened")
	return a, nil
}

// lockoutState selects where lockout records and their locks live. Terminals
// sharing a Redis share lockouts; otherwise they stay in process memory.
func (a *App) lockoutState(ctx context.Context) (repository.LockoutStore, error) {
	if a.Config.Redis.Enabled {
		client, err := rediscache.Connect(ctx, a.Config.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.locker = rediscache.NewLock(client)
		return repository.NewCacheLockoutStore(rediscache.NewCache(client)), nil
	}

	cache := memory.NewCache()
	locker := lock.NewMemoryLocker()
	a.closers = append(a.closers,
		func() error { cache.Stop(); return nil },
		func() error { locker.Stop(); return nil },
	)
	a.locker = locker
	return repository.NewCacheLockoutStore(cache), nil
}

func newPublisher(cfg config.EventsConfig, logger zerolog.Logger) (events.Publisher, error) {
	switch cfg.Driver {
	case "amqp":
		return events.NewAMQPPublisher(cfg.AMQPURL, cfg.Queue, logger)
	case "none":
		return events.NoopPublisher{}, nil
	default:
		return events.NewLogPublisher(logger), nil
	}
}

// BootstrapAdministrator seeds the configured administrator when the store is empty.
func (a *App) BootstrapAdministrator(ctx context.Context) (bool, error) {
	b := a.Config.Auth.BootstrapAdmin
	if !b.Enabled {
		return false, nil
	}
	return a.Auth.EnsureDefaultAdministrator(ctx, b.Username, b.Password)
}

// BackupService builds the snapshot service. It requires the sqlite driver and
// a configured bucket.
func (a *App) BackupService(ctx context.Context) (*service.BackupService, error) {
	if a.Store.Snapshotter == nil {
		return nil, fmt.Errorf("driver %s does not support snapshots", a.Config.Database.Driver)
	}
	cfg := a.Config.Backup
	if cfg.Bucket == "" {
		return nil, errors.New("backup.bucket is not configured")
	}

	var enc *crypto.Encryptor
	if cfg.EncryptionKey != "" {
		var err error
		if enc, err = crypto.NewEncryptorFromHex(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("invalid backup.encryption_key: %w", err)
		}
	} else {
		a.Logger.Warn().Msg("backup.encryption_key is not set; snapshots are stored unencrypted")
	}

	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return service.NewBackupService(service.BackupDependencies{
		Gate:        a.Auth,
		Snapshotter: a.Store.Snapshotter,
		Storage:     storage.NewS3Backend(client, cfg.Bucket, a.Logger),
		Encryptor:   enc,
		Locker:      a.locker,
		Publisher:   a.publisher,
		Metrics:     a.Metrics,
		Logger:      a.Logger,
		Config:      service.BackupConfig{Prefix: cfg.Prefix, Retain: cfg.Retain},
	}), nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
