package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/events"
	"github.com/prn-tf/medstore/internal/lock"
	"github.com/prn-tf/medstore/internal/metrics"
	"github.com/prn-tf/medstore/internal/repository"
)

const (
	// DefaultListLimit is used when ListAccounts is called without a limit.
	DefaultListLimit = 20

	// MaxListLimit caps the page size of ListAccounts.
	MaxListLimit = 100

	bootstrapLockTTL        = 30 * time.Second
	bootstrapLockRetries    = 100
	bootstrapLockRetryDelay = 50 * time.Millisecond
)

// Operation names reported to metrics.
const (
	opCreate       = "create"
	opUpdate       = "update"
	opDelete       = "delete"
	opActivate     = "activate"
	opDeactivate   = "deactivate"
	opChangeSecret = "change_password"
	opBootstrap    = "bootstrap"
)

// CreateAccountInput contains the data needed to create an account.
type CreateAccountInput struct {
	Username string
	Password string
	Role     domain.Role
	FullName string
	Email    string
	Phone    string
}

// UpdateAccountInput contains the fields to change. Nil fields are left as they are.
type UpdateAccountInput struct {
	Username *string
	Password *string
	Role     *domain.Role
	IsActive *bool
	FullName *string
	Email    *string
	Phone    *string
}

// ListAccountsInput filters and paginates ListAccounts.
type ListAccountsInput struct {
	Role   *domain.Role
	Limit  int
	Offset int
}

// CreateAccount creates an account. Requires an administrator session.
func (s *AuthService) CreateAccount(ctx context.Context, input CreateAccountInput) (account *domain.Account, err error) {
	defer func() { s.observe(opCreate, err) }()

	session, err := s.requireAdministrator()
	if err != nil {
		return nil, err
	}

	account, err = s.buildAccount(input)
	if err != nil {
		return nil, err
	}

	exists, err := s.accounts.ExistsByUsername(ctx, account.Username, 0)
	if err != nil {
		s.logger.Error().Err(err).Str("username", account.Username).Msg("failed to check username existence")
		return nil, unavailable(err)
	}
	if exists {
		return nil, domain.NewDomainError(domain.ErrConflict, "username already taken", account.Username)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		s.logger.Error().Err(err).Str("username", account.Username).Msg("failed to create account")
		return nil, storeError(err, account.Username)
	}

	s.logger.Info().
		Int64("account_id", account.ID).
		Str("username", account.Username).
		Str("role", string(account.Role)).
		Str("actor", session.Account.Username).
		Msg("account created")
	s.publish(events.New(events.AccountCreated, s.nowFn(), session.Account.Username, account.Username, account.ID).
		With("role", string(account.Role)))

	return account.Clone(), nil
}

// buildAccount validates input and returns an unsaved account with a hashed secret.
func (s *AuthService) buildAccount(input CreateAccountInput) (*domain.Account, error) {
	if err := domain.ValidateSecretStrength(input.Password); err != nil {
		return nil, err
	}

	now := s.nowFn().UTC()
	account := domain.NewAccount(input.Username, input.Role, now)
	account.FullName = strings.TrimSpace(input.FullName)
	account.Email = strings.TrimSpace(input.Email)
	account.Phone = strings.TrimSpace(input.Phone)

	hash, err := account.HashSecret(s.hasher, input.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		return nil, fmt.Errorf("%w: failed to hash password", domain.ErrStoreUnavailable)
	}
	account.SecretHash = hash

	if err := account.Validate().Err(); err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccount changes an account. Requires an administrator session.
// An administrator cannot deactivate their own account.
func (s *AuthService) UpdateAccount(ctx context.Context, id int64, input UpdateAccountInput) (account *domain.Account, err error) {
	defer func() { s.observe(opUpdate, err) }()

	session, err := s.requireAdministrator()
	if err != nil {
		return nil, err
	}
	if input.IsActive != nil && !*input.IsActive && id == session.Account.ID {
		return nil, fmt.Errorf("%w: cannot deactivate your own account", domain.ErrSelfTarget)
	}
	if input.Password != nil {
		if err := domain.ValidateSecretStrength(*input.Password); err != nil {
			return nil, err
		}
	}

	account, err = s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, accountRef(id))
	}

	var changed []string
	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username != account.Username {
			exists, err := s.accounts.ExistsByUsername(ctx, username, id)
			if err != nil {
				return nil, unavailable(err)
			}
			if exists {
				return nil, domain.NewDomainError(domain.ErrConflict, "username already taken", username)
			}
			account.Username = username
			changed = append(changed, "username")
		}
	}
	if input.Role != nil {
		account.Role = *input.Role
		changed = append(changed, "role")
	}
	if input.IsActive != nil {
		account.IsActive = *input.IsActive
		changed = append(changed, "is_active")
	}
	if input.FullName != nil {
		account.FullName = strings.TrimSpace(*input.FullName)
		changed = append(changed, "full_name")
	}
	if input.Email != nil {
		account.Email = strings.TrimSpace(*input.Email)
		changed = append(changed, "email")
	}
	if input.Phone != nil {
		account.Phone = strings.TrimSpace(*input.Phone)
		changed = append(changed, "phone")
	}
	if input.Password != nil {
		hash, err := account.HashSecret(s.hasher, *input.Password)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to hash password", domain.ErrStoreUnavailable)
		}
		account.SecretHash = hash
		changed = append(changed, "password")
	}
	account.UpdatedAt = s.nowFn().UTC()

	if err := account.Validate().Err(); err != nil {
		return nil, err
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		s.logger.Error().Err(err).Int64("account_id", id).Msg("failed to update account")
		return nil, storeError(err, accountRef(id))
	}

	if id == session.Account.ID {
		s.replaceSessionAccount(session, account)
	}

	s.logger.Info().
		Int64("account_id", id).
		Strs("fields", changed).
		Str("actor", session.Account.Username).
		Msg("account updated")
	s.publish(events.New(events.AccountUpdated, s.nowFn(), session.Account.Username, account.Username, id).
		With("fields", strings.Join(changed, ",")))

	return account.Clone(), nil
}

// DeleteAccount removes an account. Requires an administrator session.
// An administrator cannot delete their own account.
func (s *AuthService) DeleteAccount(ctx context.Context, id int64) (err error) {
	defer func() { s.observe(opDelete, err) }()

	session, err := s.requireAdministrator()
	if err != nil {
		return err
	}
	if id == session.Account.ID {
		return fmt.Errorf("%w: cannot delete your own account", domain.ErrSelfTarget)
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return storeError(err, accountRef(id))
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Int64("account_id", id).Msg("failed to delete account")
		return storeError(err, accountRef(id))
	}

	s.logger.Info().
		Int64("account_id", id).
		Str("username", account.Username).
		Str("actor", session.Account.Username).
		Msg("account deleted")
	s.publish(events.New(events.AccountDeleted, s.nowFn(), session.Account.Username, account.Username, id))
	return nil
}

// ActivateAccount allows an account to authenticate again. Requires an administrator session.
func (s *AuthService) ActivateAccount(ctx context.Context, id int64) (err error) {
	defer func() { s.observe(opActivate, err) }()

	session, err := s.requireAdministrator()
	if err != nil {
		return err
	}
	return s.setActivation(ctx, session, id, true)
}

// DeactivateAccount stops an account from authenticating. Requires an administrator
// session. An administrator cannot deactivate their own account.
func (s *AuthService) DeactivateAccount(ctx context.Context, id int64) (err error) {
	defer func() { s.observe(opDeactivate, err) }()

	session, err := s.requireAdministrator()
	if err != nil {
		return err
	}
	if id == session.Account.ID {
		return fmt.Errorf("%w: cannot deactivate your own account", domain.ErrSelfTarget)
	}
	return s.setActivation(ctx, session, id, false)
}

func (s *AuthService) setActivation(ctx context.Context, session *domain.Session, id int64, active bool) error {
	if err := s.accounts.UpdateActivation(ctx, id, active); err != nil {
		s.logger.Error().Err(err).Int64("account_id", id).Bool("active", active).Msg("failed to change activation")
		return storeError(err, accountRef(id))
	}

	eventType := events.AccountDeactivated
	if active {
		eventType = events.AccountActivated
	}
	s.logger.Info().
		Int64("account_id", id).
		Bool("active", active).
		Str("actor", session.Account.Username).
		Msg("account activation changed")
	s.publish(events.New(eventType, s.nowFn(), session.Account.Username, "", id))
	return nil
}

// ChangeOwnSecret replaces the session account's password after verifying the
// current one. Failed verification does not count towards a lockout.
func (s *AuthService) ChangeOwnSecret(ctx context.Context, current, replacement string) (err error) {
	defer func() { s.observe(opChangeSecret, err) }()

	session, err := s.requireSession()
	if err != nil {
		return err
	}
	if current == "" || replacement == "" {
		return fmt.Errorf("%w: current and new password are required", domain.ErrInvalidInput)
	}
	if !session.Account.VerifySecret(s.hasher, current) {
		s.logger.Warn().Str("username", session.Account.Username).Msg("password change rejected: wrong current password")
		return fmt.Errorf("%w: current password is incorrect", domain.ErrInvalidCredentials)
	}
	if err := domain.ValidateSecretStrength(replacement); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(replacement)
	if err != nil {
		return fmt.Errorf("%w: failed to hash password", domain.ErrStoreUnavailable)
	}
	if err := s.accounts.UpdateSecretHash(ctx, session.Account.ID, hash); err != nil {
		s.logger.Error().Err(err).Int64("account_id", session.Account.ID).Msg("failed to store new password")
		return storeError(err, accountRef(session.Account.ID))
	}

	s.mu.Lock()
	if s.session != nil && s.session.ID == session.ID {
		s.session.Account.SecretHash = hash
	}
	s.mu.Unlock()

	s.logger.Info().Str("username", session.Account.Username).Msg("password changed")
	s.publish(events.New(events.AccountSecretChanged, s.nowFn(), session.Account.Username, session.Account.Username, session.Account.ID))
	return nil
}

// GetAccount returns one account. Requires an administrator session.
func (s *AuthService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	if _, err := s.requireAdministrator(); err != nil {
		return nil, err
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, accountRef(id))
	}
	return account, nil
}

// ListAccounts returns a page of accounts ordered by username. Requires an
// administrator session.
func (s *AuthService) ListAccounts(ctx context.Context, input ListAccountsInput) (*repository.ListResult[domain.Account], error) {
	if _, err := s.requireAdministrator(); err != nil {
		return nil, err
	}
	if input.Role != nil && !input.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, *input.Role)
	}
	if input.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	result, err := s.accounts.List(ctx, repository.AccountListOptions{
		ListOptions: repository.ListOptions{Offset: input.Offset, Limit: limit},
		Role:        input.Role,
	})
	if err != nil {
		return nil, storeError(err, "")
	}
	return result, nil
}

// EnsureDefaultAdministrator creates an administrator when the store holds no
// accounts at all. It needs no session and reports whether an account was created.
func (s *AuthService) EnsureDefaultAdministrator(ctx context.Context, username, secret string) (created bool, err error) {
	defer func() {
		if created || err != nil {
			s.observe(opBootstrap, err)
		}
	}()

	l := lock.NewLock(s.locker, lock.Keys.Bootstrap())
	acquired, err := l.AcquireWithRetry(ctx, bootstrapLockTTL, bootstrapLockRetries, bootstrapLockRetryDelay)
	if err != nil {
		return false, unavailable(err)
	}
	if !acquired {
		return false, unavailable(repository.ErrLockNotAcquired)
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release bootstrap lock")
		}
	}()

	count, err := s.accounts.Count(ctx)
	if err != nil {
		return false, unavailable(err)
	}
	if count > 0 {
		return false, nil
	}

	account, err := s.buildAccount(CreateAccountInput{
		Username: username,
		Password: secret,
		Role:     domain.RoleAdministrator,
		FullName: "System Administrator",
	})
	if err != nil {
		return false, err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, nil
		}
		return false, storeError(err, username)
	}

	s.logger.Warn().
		Str("username", account.Username).
		Msg("default administrator created; change its password")
	s.publish(events.New(events.AdministratorSeeded, s.nowFn(), "", account.Username, account.ID))
	return true, nil
}

// replaceSessionAccount refreshes the snapshot of the session that performed an
// update of its own account.
func (s *AuthService) replaceSessionAccount(session *domain.Session, account *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil && s.session.ID == session.ID {
		s.session.Account = account.Clone()
	}
}

func (s *AuthService) observe(operation string, err error) {
	if err == nil {
		s.metrics.ObserveOperation(operation, metrics.ResultSuccess)
		return
	}
	s.metrics.ObserveOperation(operation, string(domain.KindOf(err)))
}
