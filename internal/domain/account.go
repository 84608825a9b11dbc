package domain

import (
	"regexp"
	"strings"
	"time"
)

const (
	// MinUsernameLength is the shortest accepted username.
	MinUsernameLength = 3

	// MaxUsernameLength is the longest accepted username.
	MaxUsernameLength = 50

	// MaxFullNameLength bounds the optional display name.
	MaxFullNameLength = 100

	// MaxEmailLength bounds the optional email address.
	MaxEmailLength = 100
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern    = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	phoneSeparators = regexp.MustCompile(`[\s\v-]`)
)

// Account represents a principal that can sign in at the point of sale.
type Account struct {
	// ID is the unique identifier (0 until persisted).
	ID int64 `json:"id"`

	// Username is the unique login name.
	// Constraints: 3-50 characters, letters, digits and underscores.
	Username string `json:"username"`

	// SecretHash is the one-way hash of the current password.
	// This should never be exposed in API responses.
	SecretHash string `json:"-"`

	// Role determines the permission set.
	Role Role `json:"role"`

	// IsActive indicates whether the account may authenticate.
	IsActive bool `json:"is_active"`

	// LastLoginAt is the time of the last successful authentication.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Optional profile fields. Validated when present, never consulted for authentication.
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the account was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAccount creates an active Account with the given username and role,
// stamped with now. The secret must be set with SetSecret before the account
// is persisted.
func NewAccount(username string, role Role, now time.Time) *Account {
	now = now.UTC()
	return &Account{
		Username:  strings.TrimSpace(username),
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the account fields. It returns an empty list iff the account is valid.
func (a *Account) Validate() ValidationErrors {
	var errs ValidationErrors

	username := strings.TrimSpace(a.Username)
	switch {
	case username == "":
		errs.add("username", "username is required")
	case len(username) < MinUsernameLength:
		errs.add("username", "username must be at least 3 characters long")
	case len(username) > MaxUsernameLength:
		errs.add("username", "username must be at most 50 characters long")
	case !usernamePattern.MatchString(username):
		errs.add("username", "username can only contain letters, numbers, and underscores")
	}

	if a.SecretHash == "" {
		errs.add("password", "password is required")
	}

	if !a.Role.IsValid() {
		errs.add("role", "role must be one of: admin, cashier")
	}

	if len(strings.TrimSpace(a.FullName)) > MaxFullNameLength {
		errs.add("full_name", "full name must be at most 100 characters long")
	}

	if email := strings.TrimSpace(a.Email); email != "" {
		if !emailPattern.MatchString(email) {
			errs.add("email", "invalid email format")
		} else if len(email) > MaxEmailLength {
			errs.add("email", "email must be at most 100 characters long")
		}
	}

	if a.Phone != "" {
		if !phonePattern.MatchString(phoneSeparators.ReplaceAllString(a.Phone, "")) {
			errs.add("phone", "invalid phone number format")
		}
	}

	return errs
}

// HashSecret hashes plain with h.
func (a *Account) HashSecret(h SecretHasher, plain string) (string, error) {
	return h.Hash(plain)
}

// SetSecret replaces the stored hash if plain satisfies the password policy.
// On failure the stored hash is left unchanged and false is returned.
// UpdatedAt is the caller's to stamp.
func (a *Account) SetSecret(h SecretHasher, plain string) bool {
	if ValidateSecretStrength(plain) != nil {
		return false
	}
	hash, err := a.HashSecret(h, plain)
	if err != nil {
		return false
	}
	a.SecretHash = hash
	return true
}

// VerifySecret reports whether plain matches the stored hash.
func (a *Account) VerifySecret(h SecretHasher, plain string) bool {
	if a.SecretHash == "" {
		return false
	}
	return h.Matches(a.SecretHash, plain)
}

// CanAuthenticate returns true if the account is allowed to authenticate.
func (a *Account) CanAuthenticate() bool {
	return a.IsActive
}

// CanAccessFeature applies the default-deny permission policy.
func (a *Account) CanAccessFeature(f Feature) bool {
	if !a.IsActive {
		return false
	}
	return a.Role.Allows(f)
}

// IsAdministrator reports whether the account has the administrator role.
func (a *Account) IsAdministrator() bool {
	return a.Role == RoleAdministrator
}

// IsCashier reports whether the account has the cashier role.
func (a *Account) IsCashier() bool {
	return a.Role == RoleCashier
}

// DisplayName returns the full name if set, otherwise the username.
func (a *Account) DisplayName() string {
	if name := strings.TrimSpace(a.FullName); name != "" {
		return name
	}
	return a.Username
}

// Clone returns a deep copy, so sessions never share state with callers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
