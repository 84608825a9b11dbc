package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
	"github.com/prn-tf/medstore/internal/storage"
)

var snapshotBytes = []byte("SQLite format 3\x00 credential store")

// fakeSnapshotter writes fixed bytes to the destination.
type fakeSnapshotter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context, dest string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return os.WriteFile(dest, snapshotBytes, 0o600)
}

func (f *fakeSnapshotter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryObject struct {
	body     []byte
	metadata map[string]string
}

// memoryBackend is an in-memory storage.Backend.
type memoryBackend struct {
	mu      sync.Mutex
	objects map[string]memoryObject
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: make(map[string]memoryObject)}
}

func (m *memoryBackend) Store(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memoryObject{body: body, metadata: metadata}
	return nil
}

func (m *memoryBackend) Retrieve(ctx context.Context, key string) (io.ReadCloser, map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, nil, storage.ErrSnapshotNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.body)), obj.metadata, nil
}

func (m *memoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryBackend) body(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].body
}

func (m *memoryBackend) corrupt(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj := m.objects[key]
	obj.body[len(obj.body)-1] ^= 0xff
	m.objects[key] = obj
}

type backupFixture struct {
	auth        *AuthService
	repo        *MockAccountRepository
	clock       *fakeClock
	snapshotter *fakeSnapshotter
	storage     *memoryBackend
	locker      *lock.MemoryLocker
	backup      *BackupService
}

func newBackupFixture(t *testing.T, encrypted bool, retain int) *backupFixture {
	t.Helper()
	repo := NewMockAccountRepository()
	auth, clock := newTestService(t, repo)

	f := &backupFixture{
		auth:        auth,
		repo:        repo,
		clock:       clock,
		snapshotter: &fakeSnapshotter{},
		storage:     newMemoryBackend(),
		locker:      lock.NewMemoryLocker(),
	}
	t.Cleanup(f.locker.Stop)

	var enc *crypto.Encryptor
	if encrypted {
		key, err := crypto.GenerateMasterKey()
		require.NoError(t, err)
		enc, err = crypto.NewEncryptorFromHex(key)
		require.NoError(t, err)
	}

	f.backup = NewBackupService(BackupDependencies{
		Gate:        auth,
		Snapshotter: f.snapshotter,
		Storage:     f.storage,
		Encryptor:   enc,
		Locker:      f.locker,
		Logger:      zerolog.Nop(),
		Clock:       clock.Now,
		Config:      BackupConfig{Prefix: "store-01", Retain: retain},
	})
	return f
}

func TestBackup_RequiresBackupFeature(t *testing.T) {
	ctx := context.Background()
	f := newBackupFixture(t, true, 0)

	_, err := f.backup.Create(ctx)
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)

	loginAs(t, f.auth, f.repo, "till1", domain.RoleCashier)
	_, err = f.backup.Create(ctx)
	require.ErrorIs(t, err, domain.ErrInsufficientPrivilege)
	_, err = f.backup.List(ctx)
	require.ErrorIs(t, err, domain.ErrInsufficientPrivilege)
	require.ErrorIs(t, f.backup.Restore(ctx, "any", filepath.Join(t.TempDir(), "out.db")), domain.ErrInsufficientPrivilege)

	require.Zero(t, f.snapshotter.Calls())
}

func TestBackup_EncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newBackupFixture(t, true, 0)
	loginAs(t, f.auth, f.repo, "owner", domain.RoleAdministrator)

	result, err := f.backup.Create(ctx)
	require.NoError(t, err)
	require.True(t, result.Encrypted)
	require.Equal(t, "store-01/2024/03/01/medstore-20240301T090000Z.db.enc", result.Key)
	require.Equal(t, int64(len(snapshotBytes)), result.PlainSize)
	require.Equal(t, crypto.ComputeSHA256(snapshotBytes), result.SHA256)
	require.NotContains(t, string(f.storage.body(result.Key)), "SQLite format 3")

	keys, err := f.backup.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{result.Key}, keys)

	dest := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, f.backup.Restore(ctx, result.Key, dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, snapshotBytes, got)

	// Restore never overwrites an existing file.
	require.Error(t, f.backup.Restore(ctx, result.Key, dest))
}

func TestBackup_Unencrypted(t *testing.T) {
	ctx := context.Background()
	f := newBackupFixture(t, false, 0)
	loginAs(t, f.auth, f.repo, "owner", domain.RoleAdministrator)

	result, err := f.backup.Create(ctx)
	require.NoError(t, err)
	require.False(t, result.Encrypted)
	require.True(t, strings.HasSuffix(result.Key, ".db"))
	require.Equal(t, snapshotBytes, f.storage.body(result.Key))
}

func TestBackup_RestoreRejectsTamperedSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newBackupFixture(t, true, 0)
	loginAs(t, f.auth, f.repo, "owner", domain.RoleAdministrator)

	result, err := f.backup.Create(ctx)
	require.NoError(t, err)
	f.storage.corrupt(result.Key)

	err = f.backup.Restore(ctx, result.Key, filepath.Join(t.TempDir(), "out.db"))
	require.ErrorIs(t, err, ErrSnapshotCorrupt)

	err = f.backup.Restore(ctx, "store-01/missing.db.enc", filepath.Join(t.TempDir(), "out.db"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBackup_PruneKeepsNewest(t *testing.T) {
	ctx := context.Background()
	f := newBackupFixture(t, false, 2)
	loginAs(t, f.auth, f.repo, "owner", domain.RoleAdministrator)

	var keys []string
	for i := 0; i < 3; i++ {
		result, err := f.backup.Create(ctx)
		require.NoError(t, err)
		keys = append(keys, result.Key)
		f.clock.Advance(time.Hour)
	}

	deleted, err := f.backup.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, keys[:1], deleted)

	remaining, err := f.backup.List(ctx)
	require.NoError(t, err)
	require.Equal(t, keys[1:], remaining)
}

func TestBackup_ConcurrentRunConflicts(t *testing.T) {
	ctx := context.Background()
	f := newBackupFixture(t, false, 0)
	loginAs(t, f.auth, f.repo, "owner", domain.RoleAdministrator)

	acquired, err := f.locker.Acquire(ctx, lock.Keys.Backup(), time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.backup.Create(ctx)
	require.ErrorIs(t, err, domain.ErrConflict)
	require.Zero(t, f.snapshotter.Calls())
}
