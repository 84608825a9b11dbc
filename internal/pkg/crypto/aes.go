package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length in bytes; NonceSize the GCM nonce length.
const (
	KeySize   = 32
	NonceSize = 12
)

var (
	ErrInvalidKeySize    = errors.New("backup key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("sealed snapshot is truncated")
	ErrDecryptionFailed  = errors.New("sealed snapshot failed authentication")
)

// Encryptor seals credential database snapshots with AES-256-GCM.
// A sealed blob is laid out as nonce, then ciphertext with the tag appended.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor builds an Encryptor around a raw 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// NewEncryptorFromHex is NewEncryptor for the hex form printed by `medstore-admin keygen`.
func NewEncryptorFromHex(hexKey string) (*Encryptor, error) {
	key, err := ParseHexKey(hexKey)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}

// Seal encrypts snapshot and binds it to aad, normally the object key it is stored under.
func (e *Encryptor) Seal(snapshot, aad []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(snapshot)+e.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return e.aead.Seal(out, out[:NonceSize], snapshot, aad), nil
}

// Open reverses Seal. The aad must match the value given to Seal.
func (e *Encryptor) Open(sealed, aad []byte) ([]byte, error) {
	if len(sealed) < NonceSize+e.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, body := sealed[:NonceSize], sealed[NonceSize:]
	snapshot, err := e.aead.Open(nil, nonce, body, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return snapshot, nil
}
