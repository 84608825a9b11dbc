package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/events"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/metrics"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
	"github.com/prn-tf/medstore/internal/repository"
	"github.com/prn-tf/medstore/internal/storage"
)

const (
	metaSHA256    = "sha256"
	metaPlainSize = "plain-size"

	opBackup  = "backup"
	opRestore = "restore"
	opPrune   = "prune"

	backupLockTTL = 10 * time.Minute
)

// ErrSnapshotCorrupt is returned when a restored snapshot fails its integrity check.
var ErrSnapshotCorrupt = errors.New("snapshot failed integrity check")

// PermissionGate authorises backup operations against the active session.
// *AuthService implements it.
type PermissionGate interface {
	RequirePermission(feature domain.Feature) error
	CurrentAccount() *domain.Account
}

// BackupConfig contains snapshot configuration.
type BackupConfig struct {
	// Prefix is prepended to every snapshot key.
	Prefix string

	// Retain is how many snapshots Prune keeps. 0 keeps all.
	Retain int
}

// BackupDependencies groups the collaborators of a BackupService.
type BackupDependencies struct {
	Gate        PermissionGate
	Snapshotter repository.Snapshotter
	Storage     storage.Backend

	// Encryptor seals snapshots. Nil uploads them unencrypted.
	Encryptor *crypto.Encryptor

	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.AuthMetrics
	Logger    zerolog.Logger
	Clock     func() time.Time
	Config    BackupConfig
}

// BackupService writes credential database snapshots to remote storage.
// Every operation requires the backup feature on the active session.
type BackupService struct {
	gate        PermissionGate
	snapshotter repository.Snapshotter
	storage     storage.Backend
	encryptor   *crypto.Encryptor
	locker      lock.Locker
	publisher   events.Publisher
	metrics     *metrics.AuthMetrics
	logger      zerolog.Logger
	nowFn       func() time.Time
	config      BackupConfig
}

// BackupResult describes one stored snapshot.
type BackupResult struct {
	Key       string        `json:"key"`
	Size      int64         `json:"size"`
	PlainSize int64         `json:"plain_size"`
	SHA256    string        `json:"sha256"`
	Encrypted bool          `json:"encrypted"`
	Duration  time.Duration `json:"duration"`
}

// NewBackupService creates a backup service.
func NewBackupService(deps BackupDependencies) *BackupService {
	if deps.Gate == nil || deps.Snapshotter == nil || deps.Storage == nil {
		panic("service: backup service requires a gate, a snapshotter and storage")
	}

	svc := &BackupService{
		gate:        deps.Gate,
		snapshotter: deps.Snapshotter,
		storage:     deps.Storage,
		encryptor:   deps.Encryptor,
		locker:      deps.Locker,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With().Str("service", "backup").Logger(),
		nowFn:       deps.Clock,
		config:      deps.Config,
	}
	if svc.locker == nil {
		svc.locker = lock.NewNoOpLocker()
	}
	if svc.publisher == nil {
		svc.publisher = events.NoopPublisher{}
	}
	if svc.nowFn == nil {
		svc.nowFn = time.Now
	}
	return svc
}

func (s *BackupService) keyConfig() storage.KeyConfig {
	return storage.KeyConfig{Prefix: s.config.Prefix, Encrypted: s.encryptor != nil}
}

// Create snapshots the credential database and stores it.
// The plaintext SHA-256 is stored as object metadata and the object key is
// bound into the ciphertext as additional data.
func (s *BackupService) Create(ctx context.Context) (result *BackupResult, err error) {
	defer func() { s.observe(opBackup, err) }()

	if err := s.gate.RequirePermission(domain.FeatureBackup); err != nil {
		return nil, err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := s.nowFn()
	plain, sum, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result = &BackupResult{
		Key:       storage.SnapshotKey(s.keyConfig(), start),
		PlainSize: int64(len(plain)),
		SHA256:    sum,
		Encrypted: s.encryptor != nil,
	}

	body := plain
	if s.encryptor != nil {
		body, err = s.encryptor.Seal(plain, []byte(result.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt snapshot: %w", err)
		}
	}
	result.Size = int64(len(body))

	metadata := map[string]string{
		metaSHA256:    result.SHA256,
		metaPlainSize: fmt.Sprintf("%d", result.PlainSize),
	}
	if err := s.storage.Store(ctx, result.Key, bytes.NewReader(body), result.Size, metadata); err != nil {
		return nil, err
	}
	result.Duration = s.nowFn().Sub(start)

	s.logger.Info().
		Str("key", result.Key).
		Int64("size", result.Size).
		Bool("encrypted", result.Encrypted).
		Msg("credential database snapshot stored")
	s.publish(events.BackupCreated, result.Key)
	return result, nil
}

// snapshot writes the database to a temporary file and returns its contents
// and their SHA-256.
func (s *BackupService) snapshot(ctx context.Context) ([]byte, string, error) {
	dir, err := os.MkdirTemp("", "medstore-backup-*")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "medstore.db")
	if err := s.snapshotter.Snapshot(ctx, path); err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	hr := crypto.NewHashReader(f)
	data, err := io.ReadAll(hr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, hr.SHA256(), nil
}

// List returns stored snapshot keys, oldest first.
func (s *BackupService) List(ctx context.Context) ([]string, error) {
	if err := s.gate.RequirePermission(domain.FeatureBackup); err != nil {
		return nil, err
	}
	return s.storage.List(ctx, storage.ListPrefix(s.keyConfig()))
}

// Restore fetches the snapshot stored under key, verifies it and writes the
// database file to dest. dest must not exist. The live database is untouched.
func (s *BackupService) Restore(ctx context.Context, key, dest string) (err error) {
	defer func() { s.observe(opRestore, err) }()

	if err := s.gate.RequirePermission(domain.FeatureBackup); err != nil {
		return err
	}

	rc, metadata, err := s.storage.Retrieve(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			return domain.NewDomainError(domain.ErrNotFound, "no such snapshot", key)
		}
		return err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}

	plain := body
	if storage.IsEncryptedKey(key) {
		if s.encryptor == nil {
			return fmt.Errorf("snapshot %s is encrypted and no encryption key is configured", key)
		}
		plain, err = s.encryptor.Open(body, []byte(key))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
		}
	}

	if want := metadata[metaSHA256]; want != "" && crypto.ComputeSHA256(plain) != want {
		return fmt.Errorf("%w: checksum mismatch for %s", ErrSnapshotCorrupt, key)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := f.Write(plain); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	s.logger.Info().Str("key", key).Str("dest", dest).Msg("snapshot restored")
	s.publish(events.BackupRestored, key)
	return nil
}

// Prune deletes the oldest snapshots beyond the retention count and returns
// the deleted keys.
func (s *BackupService) Prune(ctx context.Context) (deleted []string, err error) {
	defer func() { s.observe(opPrune, err) }()

	if err := s.gate.RequirePermission(domain.FeatureBackup); err != nil {
		return nil, err
	}
	if s.config.Retain <= 0 {
		return nil, nil
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	keys, err := s.storage.List(ctx, storage.ListPrefix(s.keyConfig()))
	if err != nil {
		return nil, err
	}
	if len(keys) <= s.config.Retain {
		return nil, nil
	}

	for _, key := range keys[:len(keys)-s.config.Retain] {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to delete snapshot")
			continue
		}
		deleted = append(deleted, key)
	}

	if len(deleted) > 0 {
		s.logger.Info().Int("count", len(deleted)).Msg("old snapshots pruned")
		s.publish(events.BackupPruned, fmt.Sprintf("%d", len(deleted)))
	}
	return deleted, nil
}

func (s *BackupService) acquire(ctx context.Context) (func(), error) {
	l := lock.NewLock(s.locker, lock.Keys.Backup())
	acquired, err := l.Acquire(ctx, backupLockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: another backup is in progress", domain.ErrConflict)
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release backup lock")
		}
	}, nil
}

func (s *BackupService) observe(op string, err error) {
	if err == nil {
		s.metrics.ObserveOperation(op, metrics.ResultSuccess)
		return
	}
	s.metrics.ObserveOperation(op, string(domain.KindOf(err)))
}

func (s *BackupService) publish(t events.Type, subject string) {
	actor := ""
	if account := s.gate.CurrentAccount(); account != nil {
		actor = account.Username
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, events.New(t, s.nowFn(), actor, subject, 0)); err != nil {
		s.logger.Warn().Err(err).Str("event", string(t)).Msg("failed to publish audit event")
	}
}
