package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// prefixHasher stores "h:"+plain so tests can read the result back.
type prefixHasher struct {
	fail bool
}

func (h prefixHasher) Hash(plain string) (string, error) {
	if h.fail {
		return "", errors.New("hasher unavailable")
	}
	return "h:" + plain, nil
}

func (prefixHasher) Matches(hash, plain string) bool { return hash == "h:"+plain }

func (prefixHasher) NeedsRehash(string) bool { return false }

func validAccount() *Account {
	a := NewAccount("cashier1", RoleCashier, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	a.SecretHash = "h:till2024"
	return a
}

func fields(errs ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestNewAccount_UsesGivenTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 11, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

	a := NewAccount("  admin ", RoleAdministrator, now)
	require.Equal(t, "admin", a.Username)
	require.True(t, a.IsActive)
	require.Equal(t, time.UTC, a.CreatedAt.Location())
	require.True(t, a.CreatedAt.Equal(now))
	require.Equal(t, a.CreatedAt, a.UpdatedAt)
}

func TestSetSecret(t *testing.T) {
	tests := []struct {
		name   string
		plain  string
		hasher prefixHasher
		ok     bool
	}{
		{"valid", "till2024", prefixHasher{}, true},
		{"too short", "abc", prefixHasher{}, false},
		{"no digit", "abcdefg", prefixHasher{}, false},
		{"no letter", "1234567", prefixHasher{}, false},
		{"too long", strings.Repeat("a1", 65), prefixHasher{}, false},
		{"hasher error", "till2024", prefixHasher{fail: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAccount()
			before := a.UpdatedAt

			require.Equal(t, tt.ok, a.SetSecret(tt.hasher, tt.plain))
			if tt.ok {
				require.Equal(t, "h:"+tt.plain, a.SecretHash)
				require.True(t, a.VerifySecret(tt.hasher, tt.plain))
			} else {
				require.Equal(t, "h:till2024", a.SecretHash)
			}
			require.Equal(t, before, a.UpdatedAt)
		})
	}
}

func TestVerifySecret_EmptyHash(t *testing.T) {
	a := validAccount()
	a.SecretHash = ""
	require.False(t, a.VerifySecret(prefixHasher{}, ""))
}

func TestCanAccessFeature(t *testing.T) {
	cashier := validAccount()
	require.True(t, cashier.CanAccessFeature(FeatureBilling))
	require.True(t, cashier.CanAccessFeature(FeatureSalesView))
	require.False(t, cashier.CanAccessFeature(FeatureUserManagement))
	require.False(t, cashier.CanAccessFeature(FeatureBackup))
	require.False(t, cashier.CanAccessFeature(Feature("unknown")))

	admin := validAccount()
	admin.Role = RoleAdministrator
	require.True(t, admin.CanAccessFeature(FeatureBackup))

	admin.IsActive = false
	require.False(t, admin.CanAuthenticate())
	for _, f := range []Feature{FeatureBilling, FeatureSettings, FeatureUserManagement} {
		require.False(t, admin.CanAccessFeature(f), f)
	}

	cashier.Role = Role("owner")
	require.False(t, cashier.CanAccessFeature(FeatureBilling))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Account)
		want   []string
	}{
		{"valid", func(*Account) {}, nil},
		{"phone with spaces", func(a *Account) { a.Phone = "+44 20 7946 0958" }, nil},
		{"phone with dashes", func(a *Account) { a.Phone = "020-7946-0958" }, nil},
		{"phone with mixed whitespace", func(a *Account) { a.Phone = "+44\n20\r7946-0958\t1" }, nil},
		{"phone with form feed", func(a *Account) { a.Phone = "+44\f20\v7946" }, nil},
		{"phone with letters", func(a *Account) { a.Phone = "call-me" }, []string{"phone"}},
		{"phone leading zero only", func(a *Account) { a.Phone = "0" }, []string{"phone"}},
		{"full name at limit", func(a *Account) { a.FullName = strings.Repeat("n", 100) }, nil},
		{"full name too long", func(a *Account) { a.FullName = strings.Repeat("n", 101) }, []string{"full_name"}},
		{"email", func(a *Account) { a.Email = "till@pharmacy.example" }, nil},
		{"bad email", func(a *Account) { a.Email = "till@pharmacy" }, []string{"email"}},
		{"email too long", func(a *Account) { a.Email = strings.Repeat("a", 95) + "@x.com" }, []string{"email"}},
		{"short username", func(a *Account) { a.Username = "ab" }, []string{"username"}},
		{"username with space", func(a *Account) { a.Username = "no spaces" }, []string{"username"}},
		{"missing hash", func(a *Account) { a.SecretHash = "" }, []string{"password"}},
		{"unknown role", func(a *Account) { a.Role = Role("owner") }, []string{"role"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAccount()
			tt.mutate(a)

			errs := a.Validate()
			if tt.want == nil {
				require.Empty(t, errs)
				require.NoError(t, errs.Err())
				return
			}
			require.Equal(t, tt.want, fields(errs))
			require.ErrorIs(t, errs.Err(), ErrInvalidInput)
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	a := validAccount()
	login := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	a.LastLoginAt = &login

	c := a.Clone()
	*c.LastLoginAt = login.Add(time.Hour)
	c.Username = "other"

	require.Equal(t, login, *a.LastLoginAt)
	require.Equal(t, "cashier1", a.Username)
	require.Nil(t, (*Account)(nil).Clone())
}
