package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("admin123")
	require.NoError(t, err)
	require.NotEqual(t, "admin123", hash)

	require.True(t, h.Matches(hash, "admin123"))
	require.False(t, h.Matches(hash, "Admin123"))
	require.False(t, h.Matches(hash, ""))
	require.False(t, h.NeedsRehash(hash))
}

func TestBcryptHasher_LongSecret(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	long := strings.Repeat("a1", 64) // 128 characters

	hash, err := h.Hash(long)
	require.NoError(t, err)
	require.True(t, h.Matches(hash, long))
	require.False(t, h.Matches(hash, long[:72]))
}

func TestBcryptHasher_LegacySHA256(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	legacy := ComputeSHA256([]byte("admin123"))

	require.True(t, h.Matches(legacy, "admin123"))
	require.True(t, h.Matches(strings.ToUpper(legacy), "admin123"))
	require.False(t, h.Matches(legacy, "admin124"))
	require.True(t, h.NeedsRehash(legacy))
}

func TestBcryptHasher_CostMismatchNeedsRehash(t *testing.T) {
	old := NewBcryptHasher(bcrypt.MinCost)
	hash, err := old.Hash("secret1")
	require.NoError(t, err)

	require.True(t, NewBcryptHasher(bcrypt.MinCost+1).NeedsRehash(hash))
	require.False(t, NewBcryptHasher(bcrypt.MinCost+1).NeedsRehash("not-a-hash"))
}

func TestNewBcryptHasher_InvalidCostFallsBack(t *testing.T) {
	require.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).Cost())
	require.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).Cost())
	require.Equal(t, 12, NewBcryptHasher(12).Cost())
}
