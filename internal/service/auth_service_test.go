package service

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/metrics"
	"github.com/prn-tf/medstore/internal/pkg/crypto"
)

func TestAuthenticate_Success(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)
	seeded := seedAccount(t, repo, "alice", "secret123", domain.RoleCashier)

	account, err := svc.Authenticate(ctx, "  alice ", "secret123")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, account.ID)
	require.True(t, svc.IsAuthenticated())

	stored := repo.stored(seeded.ID)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, clock.Now(), *stored.LastLoginAt)

	// The returned account and CurrentAccount are copies.
	account.Role = domain.RoleAdministrator
	current := svc.CurrentAccount()
	require.Equal(t, domain.RoleCashier, current.Role)
	current.Username = "mallory"
	require.Equal(t, "alice", svc.CurrentAccount().Username)
}

func TestAuthenticate_EmptyInputNeverReachesStore(t *testing.T) {
	tests := []struct {
		name     string
		username string
		secret   string
	}{
		{"empty username", "", "secret123"},
		{"blank username", "   ", "secret123"},
		{"empty secret", "alice", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &accountRepoSpy{}
			svc, _ := newTestService(t, spy)

			_, err := svc.Authenticate(context.Background(), tt.username, tt.secret)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
			spy.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
			require.False(t, svc.IsAuthenticated())
		})
	}
}

func TestAuthenticate_LockoutScenario(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)
	seedAccount(t, repo, "admin", "admin123", domain.RoleAdministrator)

	for _, want := range []int{4, 3, 2, 1, 0} {
		_, err := svc.Authenticate(ctx, "admin", "wrong1")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)

		var credErr *domain.CredentialsError
		require.True(t, errors.As(err, &credErr))
		require.Equal(t, want, credErr.AttemptsRemaining)
		clock.Advance(time.Second)
	}

	// The fifth failure also locked the identifier.
	locked, err := svc.Lockouts().IsLocked(ctx, "admin")
	require.NoError(t, err)
	require.True(t, locked)

	_, err = svc.Authenticate(ctx, "admin", "admin123")
	require.ErrorIs(t, err, domain.ErrAccountLocked)
	require.NotErrorIs(t, err, domain.ErrInvalidCredentials)

	var lockErr *domain.LockoutError
	require.True(t, errors.As(err, &lockErr))
	require.Nil(t, lockErr.Trigger)
	require.Equal(t, 30, lockErr.RemainingMinutes)
	require.False(t, svc.IsAuthenticated())
}

func TestAuthenticate_ThresholdFailureCarriesLockout(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	require.NoError(t, svc.SetMaxFailedAttempts(2))

	_, err := svc.Authenticate(ctx, "ghost", "wrong1")
	require.Equal(t, domain.KindInvalidCredentials, domain.KindOf(err))

	_, err = svc.Authenticate(ctx, "ghost", "wrong1")
	require.Equal(t, domain.KindAccountLocked, domain.KindOf(err))

	var lockErr *domain.LockoutError
	require.True(t, errors.As(err, &lockErr))
	require.NotNil(t, lockErr.Trigger)
	require.Equal(t, 0, lockErr.Trigger.AttemptsRemaining)
	require.Equal(t, 30, lockErr.RemainingMinutes)
	require.Contains(t, err.Error(), "too many failed attempts")
}

func TestAuthenticate_LockExpiresAfterWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)
	seedAccount(t, repo, "bob", "secret123", domain.RoleCashier)

	for i := 0; i < 5; i++ {
		_, _ = svc.Authenticate(ctx, "bob", "nope123")
	}

	clock.Advance(10 * time.Minute)
	minutes, err := svc.Lockouts().RemainingLockMinutes(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 20, minutes)

	// At exactly the window the lock still holds.
	clock.Advance(20 * time.Minute)
	_, err = svc.Authenticate(ctx, "bob", "secret123")
	require.ErrorIs(t, err, domain.ErrAccountLocked)

	clock.Advance(time.Second)
	_, err = svc.Authenticate(ctx, "bob", "secret123")
	require.NoError(t, err)

	// The record was cleared: a new failure starts from a full budget.
	require.NoError(t, svc.Logout())
	_, err = svc.Authenticate(ctx, "bob", "nope123")
	var credErr *domain.CredentialsError
	require.True(t, errors.As(err, &credErr))
	require.Equal(t, 4, credErr.AttemptsRemaining)
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	seedAccount(t, repo, "carol", "secret123", domain.RoleCashier)
	inactive := seedAccount(t, repo, "dave", "secret123", domain.RoleCashier)
	require.NoError(t, repo.UpdateActivation(ctx, inactive.ID, false))

	cases := []struct {
		username string
		secret   string
	}{
		{"nobody", "secret123"},
		{"carol", "Secret123"},
		{"dave", "secret123"},
	}

	var messages []string
	for _, c := range cases {
		_, err := svc.Authenticate(ctx, c.username, c.secret)
		var credErr *domain.CredentialsError
		require.True(t, errors.As(err, &credErr), c.username)
		require.Equal(t, 4, credErr.AttemptsRemaining)
		require.NotErrorIs(t, err, domain.ErrAccountInactive)
		messages = append(messages, err.Error())
	}
	require.Equal(t, messages[0], messages[1])
	require.Equal(t, messages[1], messages[2])
}

func TestAuthenticate_SuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	seedAccount(t, repo, "erin", "secret123", domain.RoleCashier)

	for i := 0; i < 3; i++ {
		_, _ = svc.Authenticate(ctx, "erin", "bad1234")
	}
	_, err := svc.Authenticate(ctx, "erin", "secret123")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "erin", "bad1234")
	var credErr *domain.CredentialsError
	require.True(t, errors.As(err, &credErr))
	require.Equal(t, 4, credErr.AttemptsRemaining)
}

func TestAuthenticate_FailureKeepsExistingSession(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	loginAs(t, svc, repo, "frank", domain.RoleCashier)

	_, err := svc.Authenticate(ctx, "frank", "wrong12")
	require.Error(t, err)
	require.True(t, svc.IsAuthenticated())
	require.Equal(t, "frank", svc.CurrentAccount().Username)
}

func TestAuthenticate_StoreFault(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	before := loginAs(t, svc, repo, "gina", domain.RoleCashier)
	sessionID := svc.CurrentSession().ID

	repo.getErr = errStoreDown
	_, err := svc.Authenticate(ctx, "gina", "secret123")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.Equal(t, domain.KindStoreUnavailable, domain.KindOf(err))

	// Neither the session nor the lockout state changed.
	require.Equal(t, sessionID, svc.CurrentSession().ID)
	require.Equal(t, before.ID, svc.CurrentAccount().ID)
	remaining, err := svc.Lockouts().Status(ctx, "gina")
	require.NoError(t, err)
	require.Zero(t, remaining)

	repo.getErr = nil
	_, err = svc.Authenticate(ctx, "gina", "wrong12")
	var credErr *domain.CredentialsError
	require.True(t, errors.As(err, &credErr))
	require.Equal(t, 4, credErr.AttemptsRemaining)
}

func TestAuthenticate_LockoutStoreFault(t *testing.T) {
	repo := NewMockAccountRepository()
	seedAccount(t, repo, "hank", "secret123", domain.RoleCashier)
	svc := NewAuthService(AuthDependencies{
		Accounts: repo,
		Lockouts: failingLockoutStore{},
		Hasher:   testHasher,
		Logger:   zerolog.Nop(),
	})

	_, err := svc.Authenticate(context.Background(), "hank", "secret123")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.False(t, svc.IsAuthenticated())
}

func TestAuthenticate_LastLoginFailureIsNotFatal(t *testing.T) {
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	seedAccount(t, repo, "ivan", "secret123", domain.RoleCashier)
	repo.touchErr = errStoreDown

	_, err := svc.Authenticate(context.Background(), "ivan", "secret123")
	require.NoError(t, err)
	require.True(t, svc.IsAuthenticated())
}

func TestAuthenticate_ReplacesSession(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)
	loginAs(t, svc, repo, "jane", domain.RoleCashier)
	first := svc.CurrentSession().ID

	seedAccount(t, repo, "kyle", "secret123", domain.RoleAdministrator)
	_, err := svc.Authenticate(ctx, "kyle", "secret123")
	require.NoError(t, err)

	require.NotEqual(t, first, svc.CurrentSession().ID)
	require.Equal(t, "kyle", svc.CurrentAccount().Username)
}

func TestAuthenticate_UpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)

	legacy := domain.NewAccount("admin", domain.RoleAdministrator, clock.Now())
	legacy.SecretHash = crypto.ComputeSHA256([]byte("admin123"))
	require.NoError(t, repo.Create(ctx, legacy))

	_, err := svc.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)

	stored := repo.stored(legacy.ID)
	require.True(t, strings.HasPrefix(stored.SecretHash, "$2"))
	require.True(t, testHasher.Matches(stored.SecretHash, "admin123"))
	require.True(t, svc.CurrentAccount().VerifySecret(testHasher, "admin123"))
}

func TestAuthenticate_ConcurrentFailuresAreCounted(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	locker := lock.NewMemoryLocker()
	defer locker.Stop()

	svc := NewAuthService(AuthDependencies{
		Accounts: repo,
		Hasher:   testHasher,
		Locker:   locker,
		Logger:   zerolog.Nop(),
		Config:   AuthConfig{MaxFailedAttempts: 8, LockoutDuration: time.Minute},
	})
	seedAccount(t, repo, "lena", "secret123", domain.RoleCashier)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Authenticate(ctx, "lena", "wrong12")
		}()
	}
	wg.Wait()

	locked, err := svc.Lockouts().IsLocked(ctx, "lena")
	require.NoError(t, err)
	require.True(t, locked)
}

func TestLogout(t *testing.T) {
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)

	require.ErrorIs(t, svc.Logout(), domain.ErrNoActiveSession)

	loginAs(t, svc, repo, "mona", domain.RoleCashier)
	require.NoError(t, svc.Logout())
	require.False(t, svc.IsAuthenticated())
	require.Nil(t, svc.CurrentAccount())
	require.ErrorIs(t, svc.Logout(), domain.ErrNoActiveSession)
}

func TestSession_IdleExpiry(t *testing.T) {
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)
	require.NoError(t, svc.SetSessionTimeoutMinutes(10))
	loginAs(t, svc, repo, "nick", domain.RoleCashier)

	clock.Advance(10 * time.Minute)
	require.True(t, svc.IsAuthenticated())

	clock.Advance(time.Nanosecond)
	require.False(t, svc.IsAuthenticated())
	require.Nil(t, svc.CurrentAccount())
	require.ErrorIs(t, svc.RequireAuthenticated(), domain.ErrNotAuthenticated)
	require.ErrorIs(t, svc.Logout(), domain.ErrNoActiveSession)
}

func TestSession_RefreshActivityExtends(t *testing.T) {
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)
	require.NoError(t, svc.SetSessionTimeoutMinutes(10))

	require.False(t, svc.RefreshActivity())
	loginAs(t, svc, repo, "olga", domain.RoleCashier)

	clock.Advance(8 * time.Minute)
	require.True(t, svc.RefreshActivity())
	clock.Advance(8 * time.Minute)
	require.True(t, svc.IsAuthenticated())

	clock.Advance(3 * time.Minute)
	require.False(t, svc.RefreshActivity())
	require.False(t, svc.IsAuthenticated())
}

func TestRefreshSession_OnlyTouchesMatchingSession(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)
	require.NoError(t, svc.SetSessionTimeoutMinutes(10))

	_, ok := svc.RefreshSession(uuid.New())
	require.False(t, ok)

	loginAs(t, svc, repo, "olga", domain.RoleCashier)
	first := svc.CurrentSession().ID

	clock.Advance(8 * time.Minute)
	_, ok = svc.RefreshSession(uuid.New())
	require.False(t, ok)

	session, ok := svc.RefreshSession(first)
	require.True(t, ok)
	require.Equal(t, first, session.ID)
	require.Equal(t, "olga", session.Account.Username)
	require.Equal(t, clock.Now(), session.LastActivityAt)

	// A token of the replaced session neither refreshes nor sees the new one.
	_, err := svc.Authenticate(ctx, "olga", "secret123")
	require.NoError(t, err)
	second := svc.CurrentSession().ID
	clock.Advance(9 * time.Minute)

	_, ok = svc.RefreshSession(first)
	require.False(t, ok)
	clock.Advance(2 * time.Minute)
	require.False(t, svc.IsAuthenticated())

	_, ok = svc.RefreshSession(second)
	require.False(t, ok)
}

func TestSessionInfo(t *testing.T) {
	repo := NewMockAccountRepository()
	svc, clock := newTestService(t, repo)

	info := svc.SessionInfo()
	require.False(t, info.LoggedIn)
	require.Equal(t, 480, info.TimeoutMinutes)

	loginAs(t, svc, repo, "pete", domain.RoleAdministrator)
	clock.Advance(90*time.Second + 1)

	info = svc.SessionInfo()
	require.True(t, info.LoggedIn)
	require.Equal(t, "pete", info.Account.Username)
	require.Equal(t, 478, info.RemainingMinutes)
	require.NotEmpty(t, info.SessionID)
	require.True(t, info.LastActivityAt.Before(clock.Now()))
}

func TestPermissions(t *testing.T) {
	repo := NewMockAccountRepository()
	svc, _ := newTestService(t, repo)

	require.False(t, svc.HasPermission(domain.FeatureBilling))
	require.ErrorIs(t, svc.RequireAdministrator(), domain.ErrNotAuthenticated)
	require.ErrorIs(t, svc.RequirePermission(domain.FeatureBilling), domain.ErrNotAuthenticated)

	loginAs(t, svc, repo, "cashier1", domain.RoleCashier)
	require.True(t, svc.IsCashier())
	require.False(t, svc.IsAdministrator())
	require.True(t, svc.HasPermission(domain.FeatureBilling))
	require.True(t, svc.HasPermission(domain.FeatureSalesView))
	require.False(t, svc.HasPermission(domain.FeatureReports))
	require.False(t, svc.HasPermission(domain.Feature("unknown")))
	require.NoError(t, svc.RequirePermission(domain.FeatureMedicineView))
	require.ErrorIs(t, svc.RequirePermission(domain.FeatureBackup), domain.ErrInsufficientPrivilege)
	require.ErrorIs(t, svc.RequireAdministrator(), domain.ErrInsufficientPrivilege)

	require.NoError(t, svc.Logout())
	loginAs(t, svc, repo, "admin1", domain.RoleAdministrator)
	require.True(t, svc.IsAdministrator())
	require.NoError(t, svc.RequireAdministrator())
	require.True(t, svc.HasPermission(domain.FeatureUserManagement))
	require.True(t, svc.HasPermission(domain.Feature("unknown")))
}

func TestSetters_RejectNonPositive(t *testing.T) {
	svc, _ := newTestService(t, NewMockAccountRepository())

	for _, n := range []int{0, -1} {
		require.ErrorIs(t, svc.SetSessionTimeoutMinutes(n), domain.ErrInvalidInput)
		require.ErrorIs(t, svc.SetMaxFailedAttempts(n), domain.ErrInvalidInput)
		require.ErrorIs(t, svc.SetLockoutMinutes(n), domain.ErrInvalidInput)
	}

	require.NoError(t, svc.SetSessionTimeoutMinutes(15))
	require.NoError(t, svc.SetMaxFailedAttempts(3))
	require.NoError(t, svc.SetLockoutMinutes(5))
	require.Equal(t, 15*time.Minute, svc.SessionTimeout())
	require.Equal(t, 3, svc.Lockouts().MaxFailedAttempts())
	require.Equal(t, 5*time.Minute, svc.Lockouts().LockoutDuration())
}

func TestAuthenticate_Metrics(t *testing.T) {
	ctx := context.Background()
	repo := NewMockAccountRepository()
	reg := prometheus.NewRegistry()
	m := metrics.NewAuthMetrics(reg)
	svc := NewAuthService(AuthDependencies{
		Accounts: repo,
		Hasher:   testHasher,
		Metrics:  m,
		Logger:   zerolog.Nop(),
		Config:   AuthConfig{MaxFailedAttempts: 2},
	})
	seedAccount(t, repo, "quinn", "secret123", domain.RoleCashier)

	_, _ = svc.Authenticate(ctx, "quinn", "secret123")
	_, _ = svc.Authenticate(ctx, "other", "wrong12")
	_, _ = svc.Authenticate(ctx, "other", "wrong12")
	_, _ = svc.Authenticate(ctx, "", "x")

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP medstore_auth_attempts_total Authentication attempts by result.
# TYPE medstore_auth_attempts_total counter
medstore_auth_attempts_total{result="invalid_credentials"} 1
medstore_auth_attempts_total{result="invalid_input"} 1
medstore_auth_attempts_total{result="locked"} 1
medstore_auth_attempts_total{result="success"} 1
`), "medstore_auth_attempts_total"))

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP medstore_auth_lockouts_total Identifiers locked after too many failed attempts.
# TYPE medstore_auth_lockouts_total counter
medstore_auth_lockouts_total 1
`), "medstore_auth_lockouts_total"))
}

func TestNewAuthService_DefaultLockoutStoreStartsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		svc := NewAuthService(AuthDependencies{
			Accounts: NewMockAccountRepository(),
			Hasher:   testHasher,
			Logger:   zerolog.Nop(),
		})
		_, err := svc.Authenticate(context.Background(), "ghost", "wrong99")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	require.Less(t, runtime.NumGoroutine()-before, 5)
}
