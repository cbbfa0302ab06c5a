package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const keySecretPrefix = "sw_"

// APIKey is a bearer credential issued per user for programmatic access.
// Only the SHA-256 hash of the secret is stored; the plaintext is shown once.
type APIKey struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	Label      string     `json:"label,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt != nil
}

// NewKeySecret generates a fresh API key secret of the form "sw_<32 hex>".
func NewKeySecret() string {
	raw := uuid.New()
	return keySecretPrefix + hex.EncodeToString(raw[:])
}

// KeyPrefix returns the display prefix of a secret (first 8 chars past "sw_").
func KeyPrefix(secret string) string {
	trimmed := strings.TrimPrefix(secret, keySecretPrefix)
	if len(trimmed) > 8 {
		trimmed = trimmed[:8]
	}
	return keySecretPrefix + trimmed
}

// HashKey returns the hex SHA-256 of an API key secret.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
