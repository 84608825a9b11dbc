package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
	"github.com/prn-tf/medstore/internal/repository"
)

var errStoreDown = errors.New("database is locked")

// MockAccountRepository is an in-memory repository.AccountRepository.
// Setting one of the error fields makes the matching calls fail.
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	nextID   int64
	calls    int

	getErr    error
	updateErr error
	touchErr  error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int64]*domain.Account),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, a := range m.accounts {
		if a.Username == account.Username {
			return repository.ErrConflict
		}
	}
	account.ID = m.nextID
	m.nextID++
	m.accounts[account.ID] = account.Clone()
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, a := range m.accounts {
		if a.Username == username {
			return a.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockAccountRepository) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, a := range m.accounts {
		if a.Username == username && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockAccountRepository) Update(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.accounts[account.ID]; !ok {
		return repository.ErrNotFound
	}
	m.accounts[account.ID] = account.Clone()
	return nil
}

func (m *MockAccountRepository) UpdateSecretHash(ctx context.Context, id int64, hash string) error {
	return m.mutate(id, func(a *domain.Account) { a.SecretHash = hash })
}

func (m *MockAccountRepository) UpdateActivation(ctx context.Context, id int64, active bool) error {
	return m.mutate(id, func(a *domain.Account) { a.IsActive = active })
}

func (m *MockAccountRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	touchErr := m.touchErr
	m.mu.Unlock()
	if touchErr != nil {
		return touchErr
	}
	return m.mutate(id, func(a *domain.Account) { a.LastLoginAt = &at })
}

func (m *MockAccountRepository) mutate(id int64, fn func(*domain.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(a)
	return nil
}

func (m *MockAccountRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MockAccountRepository) List(ctx context.Context, opts repository.AccountListOptions) (*repository.ListResult[domain.Account], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	var all []*domain.Account
	for _, a := range m.accounts {
		if opts.Role != nil && a.Role != *opts.Role {
			continue
		}
		all = append(all, a.Clone())
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	result := &repository.ListResult[domain.Account]{
		Total:  int64(len(all)),
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}
	if opts.Offset < len(all) {
		end := min(opts.Offset+opts.Limit, len(all))
		result.Items = all[opts.Offset:end]
		result.HasMore = end < len(all)
	}
	return result, nil
}

func (m *MockAccountRepository) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return int64(len(m.accounts)), nil
}

// stored returns a copy of the stored account.
func (m *MockAccountRepository) stored(id int64) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].Clone()
}

var _ repository.AccountRepository = (*MockAccountRepository)(nil)

// accountRepoSpy is a testify mock used where a test asserts which store calls happen.
type accountRepoSpy struct {
	mock.Mock
}

func (s *accountRepoSpy) Create(ctx context.Context, account *domain.Account) error {
	return s.Called(ctx, account).Error(0)
}

func (s *accountRepoSpy) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	args := s.Called(ctx, id)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}

func (s *accountRepoSpy) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	args := s.Called(ctx, username)
	a, _ := args.Get(0).(*domain.Account)
	return a, args.Error(1)
}

func (s *accountRepoSpy) ExistsByUsername(ctx context.Context, username string, excludeID int64) (bool, error) {
	args := s.Called(ctx, username, excludeID)
	return args.Bool(0), args.Error(1)
}

func (s *accountRepoSpy) Update(ctx context.Context, account *domain.Account) error {
	return s.Called(ctx, account).Error(0)
}

func (s *accountRepoSpy) UpdateSecretHash(ctx context.Context, id int64, hash string) error {
	return s.Called(ctx, id, hash).Error(0)
}

func (s *accountRepoSpy) UpdateActivation(ctx context.Context, id int64, active bool) error {
	return s.Called(ctx, id, active).Error(0)
}

func (s *accountRepoSpy) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.Called(ctx, id, at).Error(0)
}

func (s *accountRepoSpy) Delete(ctx context.Context, id int64) error {
	return s.Called(ctx, id).Error(0)
}

func (s *accountRepoSpy) List(ctx context.Context, opts repository.AccountListOptions) (*repository.ListResult[domain.Account], error) {
	args := s.Called(ctx, opts)
	r, _ := args.Get(0).(*repository.ListResult[domain.Account])
	return r, args.Error(1)
}

func (s *accountRepoSpy) Count(ctx context.Context) (int64, error) {
	args := s.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

var _ repository.AccountRepository = (*accountRepoSpy)(nil)

// failingLockoutStore fails every call.
type failingLockoutStore struct{}

func (failingLockoutStore) Get(context.Context, string) (*domain.LockoutRecord, error) {
	return nil, errStoreDown
}

func (failingLockoutStore) Save(context.Context, string, *domain.LockoutRecord, time.Duration) error {
	return errStoreDown
}

func (failingLockoutStore) Delete(context.Context, string) error {
	return errStoreDown
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testHasher is shared so tests pay the bcrypt cost once per hash.
var testHasher = crypto.NewBcryptHasher(bcrypt.MinCost)

func newTestService(t *testing.T, repo repository.AccountRepository) (*AuthService, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	svc := NewAuthService(AuthDependencies{
		Accounts: repo,
		Hasher:   testHasher,
		Logger:   zerolog.Nop(),
		Clock:    clock.Now,
		Config: AuthConfig{
			SessionTimeout:    480 * time.Minute,
			MaxFailedAttempts: 5,
			LockoutDuration:   30 * time.Minute,
		},
	})
	return svc, clock
}

// seedAccount stores an account with the given password and returns its stored copy.
func seedAccount(t *testing.T, repo *MockAccountRepository, username, password string, role domain.Role) *domain.Account {
	t.Helper()
	account := domain.NewAccount(username, role, newFakeClock().Now())
	require.True(t, account.SetSecret(testHasher, password))
	require.NoError(t, repo.Create(context.Background(), account))
	return account.Clone()
}

// loginAs seeds an account and authenticates with it.
func loginAs(t *testing.T, svc *AuthService, repo *MockAccountRepository, username string, role domain.Role) *domain.Account {
	t.Helper()
	seeded := seedAccount(t, repo, username, "secret123", role)
	_, err := svc.Authenticate(context.Background(), username, "secret123")
	require.NoError(t, err)
	return seeded
}
