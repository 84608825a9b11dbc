package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidHexKey = errors.New("backup key must be 64 hex characters")

// tokenSecretBytes yields a 64-character secret once base64url encoded.
const tokenSecretBytes = 48

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateMasterKey returns a fresh backup encryption key, hex encoded.
func GenerateMasterKey() (string, error) {
	key, err := randomBytes(KeySize)
	if err != nil {
		return "", fmt.Errorf("generate backup key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// GenerateTokenSecret returns a fresh HMAC secret for session tokens.
func GenerateTokenSecret() (string, error) {
	secret, err := randomBytes(tokenSecretBytes)
	if err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(secret), nil
}

// ParseHexKey decodes a backup key. Surrounding whitespace from env files is ignored.
func ParseHexKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(KeySize) {
		return nil, ErrInvalidHexKey
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHexKey, err)
	}
	return key, nil
}
