// Package crypto holds the hashing and encryption primitives: bcrypt secret
// hashing, snapshot checksums and AES-256-GCM sealing of backups.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// HashReader checksums a stream as it is consumed.
type HashReader struct {
	r     io.Reader
	h     hash.Hash
	count int64
}

func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{r: r, h: sha256.New()}
}

func (hr *HashReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	hr.h.Write(p[:n])
	hr.count += int64(n)
	return n, err
}

// SHA256 is the hex digest of the bytes read so far.
func (hr *HashReader) SHA256() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// Size is the number of bytes read so far.
func (hr *HashReader) Size() int64 {
	return hr.count
}

// ComputeSHA256 returns the hex digest of data.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsSHA256Hex reports whether s looks like a hex SHA-256 digest, in either case.
func IsSHA256Hex(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
