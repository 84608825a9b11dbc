package storage

import (
	"path"
	"strings"
	"time"
)

// KeyConfig holds configuration for snapshot key generation.
type KeyConfig struct {
	// Prefix is prepended to every key, e.g. "store-01/".
	Prefix string

	// Encrypted selects the ".db.enc" extension over ".db".
	Encrypted bool
}

const snapshotTimeLayout = "20060102T150405Z"

// SnapshotKey generates the object key for a snapshot taken at the given time.
// Keys are sharded by UTC date so listings stay small.
//
// Example:
//
//	prefix: "store-01"
//	at: 2024-03-01 09:00:00 UTC
//	result: "store-01/2024/03/01/medstore-20240301T090000Z.db.enc"
func SnapshotKey(cfg KeyConfig, at time.Time) string {
	at = at.UTC()
	ext := ".db"
	if cfg.Encrypted {
		ext = ".db.enc"
	}
	name := "medstore-" + at.Format(snapshotTimeLayout) + ext
	return path.Join(strings.Trim(cfg.Prefix, "/"), at.Format("2006"), at.Format("01"), at.Format("02"), name)
}

// IsEncryptedKey reports whether key names a sealed snapshot.
func IsEncryptedKey(key string) bool {
	return strings.HasSuffix(key, ".enc")
}

// ListPrefix returns the prefix that matches every key produced for cfg.
func ListPrefix(cfg KeyConfig) string {
	p := strings.Trim(cfg.Prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
