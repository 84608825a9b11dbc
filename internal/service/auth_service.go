package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/cache/memory"
	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/events"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/metrics"
	"github.com/prn-tf/medstore/internal/repository"
)

const (
	publishTimeout = 5 * time.Second

	// dummySecret is hashed once so unknown usernames cost one comparison too.
	dummySecret = "medstore-dummy-secret-1"
)

// AuthConfig holds the session and lockout settings.
type AuthConfig struct {
	SessionTimeout    time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// AuthDependencies are the collaborators of an AuthService.
// Accounts and Hasher are required; everything else has a default.
type AuthDependencies struct {
	Accounts  repository.AccountRepository
	Lockouts  repository.LockoutStore
	Hasher    domain.SecretHasher
	Locker    lock.Locker
	Publisher events.Publisher
	Metrics   *metrics.AuthMetrics
	Logger    zerolog.Logger
	Clock     func() time.Time
	Config    AuthConfig
}

// AuthService owns the single session of a terminal and enforces the
// permission gates in front of account management.
type AuthService struct {
	accounts  repository.AccountRepository
	hasher    domain.SecretHasher
	lockouts  *LockoutTracker
	locker    lock.Locker
	publisher events.Publisher
	metrics   *metrics.AuthMetrics
	logger    zerolog.Logger
	nowFn     func() time.Time

	// mu guards the session slot and the timeout. It is never held across a store call.
	mu             sync.Mutex
	session        *domain.Session
	sessionTimeout time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService. It panics if Accounts or Hasher is nil.
func NewAuthService(deps AuthDependencies) *AuthService {
	if deps.Accounts == nil {
		panic("service: nil account repository")
	}
	if deps.Hasher == nil {
		panic("service: nil secret hasher")
	}
	if deps.Lockouts == nil {
		deps.Lockouts = repository.NewCacheLockoutStore(memory.NewUnsweptCache())
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewNoOpLocker()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Config.SessionTimeout <= 0 {
		deps.Config.SessionTimeout = domain.DefaultSessionTimeout
	}

	tracker := NewLockoutTracker(deps.Lockouts, deps.Locker, LockoutConfig{
		MaxFailedAttempts: deps.Config.MaxFailedAttempts,
		LockoutDuration:   deps.Config.LockoutDuration,
	}, deps.Logger)
	tracker.SetClock(deps.Clock)

	return &AuthService{
		accounts:       deps.Accounts,
		hasher:         deps.Hasher,
		lockouts:       tracker,
		locker:         deps.Locker,
		publisher:      deps.Publisher,
		metrics:        deps.Metrics,
		logger:         deps.Logger.With().Str("service", "auth").Logger(),
		nowFn:          deps.Clock,
		sessionTimeout: deps.Config.SessionTimeout,
	}
}

// Lockouts exposes the lockout tracker.
func (s *AuthService) Lockouts() *LockoutTracker {
	return s.lockouts
}

// =============================================================================
// Authentication
// =============================================================================

// Authenticate verifies username and secret and, on success, replaces any existing
// session with a new one for the account.
//
// Unknown usernames, inactive accounts and wrong secrets all fail the same way.
// The failure that reaches the threshold returns a *domain.LockoutError whose
// Trigger carries AttemptsRemaining 0; every other failure returns a
// *domain.CredentialsError.
func (s *AuthService) Authenticate(ctx context.Context, username, secret string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		s.metrics.ObserveAttempt(metrics.ResultInvalidInput)
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	remaining, err := s.lockouts.Status(ctx, username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to read lockout state")
		s.metrics.ObserveAttempt(metrics.ResultStoreError)
		return nil, err
	}
	if remaining > 0 {
		minutes := domain.CeilMinutes(remaining)
		s.logger.Warn().Str("username", username).Int("remaining_minutes", minutes).Msg("authentication rejected: locked")
		s.metrics.ObserveAttempt(metrics.ResultLocked)
		s.publish(events.New(events.LoginFailed, s.nowFn(), "", username, 0).With("reason", "locked"))
		return nil, &domain.LockoutError{RemainingMinutes: minutes}
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error().Err(err).Str("username", username).Msg("failed to load account")
			s.metrics.ObserveAttempt(metrics.ResultStoreError)
			return nil, unavailable(err)
		}
		account = nil
	}

	if !s.verify(account, secret) {
		return nil, s.rejectAttempt(ctx, username)
	}

	if err := s.lockouts.RecordSuccess(ctx, username); err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to clear lockout state")
		s.metrics.ObserveAttempt(metrics.ResultStoreError)
		return nil, err
	}

	now := s.nowFn()
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn().Err(err).Int64("account_id", account.ID).Msg("failed to record last login")
	} else {
		account.LastLoginAt = &now
	}
	s.upgradeHash(ctx, account, secret)

	session := domain.NewSession(account, now)
	s.mu.Lock()
	replaced := s.session
	s.session = session
	s.mu.Unlock()

	if replaced != nil {
		s.metrics.SessionClosed(false)
	}
	s.metrics.SessionOpened()
	s.metrics.ObserveAttempt(metrics.ResultSuccess)

	s.logger.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Str("role", string(account.Role)).
		Str("session_id", session.ID.String()).
		Msg("account authenticated")
	s.publish(events.New(events.LoginSucceeded, now, account.Username, account.Username, account.ID).
		With("session_id", session.ID.String()))

	return account.Clone(), nil
}

// verify checks the secret for account, or against a dummy hash when account is nil.
// The secret is always compared before the active flag is consulted.
func (s *AuthService) verify(account *domain.Account, secret string) bool {
	if account == nil {
		s.hasher.Matches(s.dummy(), secret)
		return false
	}
	ok := account.VerifySecret(s.hasher, secret)
	return ok && account.CanAuthenticate()
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummySecret)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to compute dummy hash")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) rejectAttempt(ctx context.Context, username string) error {
	rec, err := s.lockouts.RecordFailure(ctx, username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("failed to record failed attempt")
		s.metrics.ObserveAttempt(metrics.ResultStoreError)
		return err
	}

	credErr := &domain.CredentialsError{AttemptsRemaining: max(0, s.lockouts.MaxFailedAttempts()-rec.FailedCount)}
	now := s.nowFn()

	if rec.IsLocked() {
		minutes := domain.CeilMinutes(rec.RemainingLock(now, s.lockouts.LockoutDuration()))
		s.metrics.ObserveAttempt(metrics.ResultLocked)
		s.metrics.ObserveLockout()
		s.publish(events.New(events.LockoutTriggered, now, "", username, 0).
			With("failed_count", fmt.Sprint(rec.FailedCount)).
			With("lockout_minutes", fmt.Sprint(minutes)))
		return &domain.LockoutError{RemainingMinutes: minutes, Trigger: credErr}
	}

	s.logger.Warn().
		Str("username", username).
		Int("attempts_remaining", credErr.AttemptsRemaining).
		Msg("authentication failed")
	s.metrics.ObserveAttempt(metrics.ResultInvalidCredentials)
	s.publish(events.New(events.LoginFailed, now, "", username, 0).
		With("attempts_remaining", fmt.Sprint(credErr.AttemptsRemaining)))
	return credErr
}

// upgradeHash re-hashes secrets stored with an outdated scheme. Failures are logged only.
func (s *AuthService) upgradeHash(ctx context.Context, account *domain.Account, secret string) {
	if !s.hasher.NeedsRehash(account.SecretHash) {
		return
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		s.logger.Warn().Err(err).Int64("account_id", account.ID).Msg("failed to rehash password")
		return
	}
	if err := s.accounts.UpdateSecretHash(ctx, account.ID, hash); err != nil {
		s.logger.Warn().Err(err).Int64("account_id", account.ID).Msg("failed to store upgraded password hash")
		return
	}
	account.SecretHash = hash
	s.logger.Info().Int64("account_id", account.ID).Msg("password hash upgraded")
}

// Logout ends the current session.
func (s *AuthService) Logout() error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session == nil {
		return domain.ErrNoActiveSession
	}

	s.metrics.SessionClosed(false)
	s.logger.Info().
		Str("username", session.Account.Username).
		Str("session_id", session.ID.String()).
		Msg("account logged out")
	s.publish(events.New(events.LoggedOut, s.nowFn(), session.Account.Username, session.Account.Username, session.Account.ID).
		With("session_id", session.ID.String()))
	return nil
}

// =============================================================================
// Session
// =============================================================================

// IsAuthenticated reports whether a live session exists. An idle session past the
// timeout is ended here.
func (s *AuthService) IsAuthenticated() bool {
	return s.liveSession() != nil
}

// CurrentAccount returns a copy of the session's account, or nil if not authenticated.
func (s *AuthService) CurrentAccount() *domain.Account {
	session := s.liveSession()
	if session == nil {
		return nil
	}
	return session.Account
}

// CurrentSession returns a copy of the live session, or nil.
func (s *AuthService) CurrentSession() *domain.Session {
	return s.liveSession()
}

// RefreshActivity bumps the session's last activity. It returns false if there is
// no live session.
func (s *AuthService) RefreshActivity() bool {
	now := s.nowFn()

	s.mu.Lock()
	session := s.session
	if session == nil {
		s.mu.Unlock()
		return false
	}
	if session.IsExpired(now, s.sessionTimeout) {
		s.session = nil
		s.mu.Unlock()
		s.sessionExpired(session)
		return false
	}
	session.Touch(now)
	s.mu.Unlock()
	return true
}

// RefreshSession bumps the last activity of the live session only when its ID is
// id, and returns a copy of it. A replaced, ended or expired session reports false.
func (s *AuthService) RefreshSession(id uuid.UUID) (*domain.Session, bool) {
	now := s.nowFn()

	s.mu.Lock()
	session := s.session
	if session == nil || session.ID != id {
		s.mu.Unlock()
		return nil, false
	}
	if session.IsExpired(now, s.sessionTimeout) {
		s.session = nil
		s.mu.Unlock()
		s.sessionExpired(session)
		return nil, false
	}
	session.Touch(now)
	out := *session
	out.Account = session.Account.Clone()
	s.mu.Unlock()
	return &out, true
}

// SessionTimeout returns the idle window.
func (s *AuthService) SessionTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionTimeout
}

// SetSessionTimeoutMinutes changes the idle window. It applies to the live session too.
func (s *AuthService) SetSessionTimeoutMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: session timeout must be positive, got %d", domain.ErrInvalidInput, minutes)
	}
	s.mu.Lock()
	s.sessionTimeout = time.Duration(minutes) * time.Minute
	s.mu.Unlock()
	return nil
}

// SetMaxFailedAttempts changes the lockout threshold.
func (s *AuthService) SetMaxFailedAttempts(n int) error {
	return s.lockouts.SetMaxFailedAttempts(n)
}

// SetLockoutMinutes changes the lockout window.
func (s *AuthService) SetLockoutMinutes(minutes int) error {
	return s.lockouts.SetLockoutMinutes(minutes)
}

// SessionInfo describes the current session for display.
type SessionInfo struct {
	LoggedIn         bool            `json:"logged_in"`
	SessionID        string          `json:"session_id,omitempty"`
	Account          *domain.Account `json:"account,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	LastActivityAt   *time.Time      `json:"last_activity_at,omitempty"`
	TimeoutMinutes   int             `json:"timeout_minutes"`
	RemainingMinutes int             `json:"remaining_minutes"`
}

// SessionInfo returns a snapshot of the session. RemainingMinutes is rounded down.
func (s *AuthService) SessionInfo() SessionInfo {
	timeout := s.SessionTimeout()
	info := SessionInfo{TimeoutMinutes: int(timeout / time.Minute)}

	session := s.liveSession()
	if session == nil {
		return info
	}

	remaining := session.Remaining(s.nowFn(), timeout)
	info.LoggedIn = true
	info.SessionID = session.ID.String()
	info.Account = session.Account
	info.StartedAt = &session.StartedAt
	info.LastActivityAt = &session.LastActivityAt
	info.RemainingMinutes = int(remaining / time.Minute)
	return info
}

// liveSession returns a copy of the session, ending it first if it is idle past the timeout.
func (s *AuthService) liveSession() *domain.Session {
	now := s.nowFn()

	s.mu.Lock()
	session := s.session
	if session == nil {
		s.mu.Unlock()
		return nil
	}
	if session.IsExpired(now, s.sessionTimeout) {
		s.session = nil
		s.mu.Unlock()
		s.sessionExpired(session)
		return nil
	}
	out := *session
	out.Account = session.Account.Clone()
	s.mu.Unlock()
	return &out
}

func (s *AuthService) sessionExpired(session *domain.Session) {
	s.metrics.SessionClosed(true)
	s.logger.Warn().
		Str("username", session.Account.Username).
		Str("session_id", session.ID.String()).
		Time("last_activity_at", session.LastActivityAt).
		Msg("session expired")
	s.publish(events.New(events.SessionExpired, s.nowFn(), session.Account.Username, session.Account.Username, session.Account.ID).
		With("session_id", session.ID.String()))
}

// =============================================================================
// Permissions
// =============================================================================

// HasPermission reports whether the live session's account may use feature.
func (s *AuthService) HasPermission(feature domain.Feature) bool {
	session := s.liveSession()
	return session != nil && session.Account.CanAccessFeature(feature)
}

// IsAdministrator reports whether the live session belongs to an administrator.
func (s *AuthService) IsAdministrator() bool {
	session := s.liveSession()
	return session != nil && session.Account.IsAdministrator()
}

// IsCashier reports whether the live session belongs to a cashier.
func (s *AuthService) IsCashier() bool {
	session := s.liveSession()
	return session != nil && session.Account.IsCashier()
}

// RequireAuthenticated returns ErrNotAuthenticated without a live session.
func (s *AuthService) RequireAuthenticated() error {
	_, err := s.requireSession()
	return err
}

// RequireAdministrator returns ErrNotAuthenticated without a live session and
// ErrInsufficientPrivilege for non-administrators.
func (s *AuthService) RequireAdministrator() error {
	_, err := s.requireAdministrator()
	return err
}

// RequirePermission returns ErrNotAuthenticated without a live session and
// ErrInsufficientPrivilege if the account may not use feature.
func (s *AuthService) RequirePermission(feature domain.Feature) error {
	session, err := s.requireSession()
	if err != nil {
		return err
	}
	if !session.Account.CanAccessFeature(feature) {
		return fmt.Errorf("%w: %s requires %q", domain.ErrInsufficientPrivilege, session.Account.Username, feature)
	}
	return nil
}

func (s *AuthService) requireSession() (*domain.Session, error) {
	session := s.liveSession()
	if session == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return session, nil
}

func (s *AuthService) requireAdministrator() (*domain.Session, error) {
	session, err := s.requireSession()
	if err != nil {
		return nil, err
	}
	if !session.Account.IsAdministrator() {
		return nil, fmt.Errorf("%w: administrator role required", domain.ErrInsufficientPrivilege)
	}
	return session, nil
}

func (s *AuthService) publish(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish audit event")
	}
}
