package domain

import (
	"fmt"
	"unicode"
)

const (
	// MinSecretLength is the shortest accepted password.
	MinSecretLength = 6

	// MaxSecretLength is the longest accepted password.
	MaxSecretLength = 128
)

// SecretHasher is the one-way transform used for account secrets.
// The algorithm is an implementation detail; see pkg/crypto.BcryptHasher.
type SecretHasher interface {
	// Hash returns the stored representation of plain.
	Hash(plain string) (string, error)

	// Matches reports whether plain hashes to hash.
	Matches(hash, plain string) bool

	// NeedsRehash reports whether hash was produced by an outdated scheme.
	NeedsRehash(hash string) bool
}

// ValidateSecretStrength enforces the password policy: 6 to 128 characters with at
// least one letter and one digit.
func ValidateSecretStrength(plain string) error {
	n := len([]rune(plain))
	if n < MinSecretLength || n > MaxSecretLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, MinSecretLength, MaxSecretLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range plain {
		switch {
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("%w: password must contain letters and numbers", ErrInvalidInput)
	}
	return nil
}
