package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission is the unit of access granted to an API key.
type Permission string

const (
	PermissionRead     Permission = "read"
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
)

// AllPermissions is the full wallet permission set, granted implicitly to
// bearer-authenticated principals.
func AllPermissions() []Permission {
	return []Permission{PermissionRead, PermissionDeposit, PermissionTransfer}
}

// ValidPermission reports whether p is a recognized permission.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionRead, PermissionDeposit, PermissionTransfer:
		return true
	}
	return false
}

// ExpiryCode is a relative key lifetime selected at issuance.
type ExpiryCode string

const (
	Expiry1H ExpiryCode = "1H"
	Expiry1D ExpiryCode = "1D"
	Expiry1M ExpiryCode = "1M"
	Expiry1Y ExpiryCode = "1Y"
)

// Duration maps an expiry code to its fixed duration.
// 1M and 1Y use the calendar approximations of the billing system (30/365 days).
func (e ExpiryCode) Duration() (time.Duration, bool) {
	switch e {
	case Expiry1H:
		return time.Hour, true
	case Expiry1D:
		return 24 * time.Hour, true
	case Expiry1M:
		return 30 * 24 * time.Hour, true
	case Expiry1Y:
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

// KeyStatus is the stored state of an API key. Expiry is never stored; it is
// computed from ExpiresAt at evaluation time.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRevoked KeyStatus = "revoked"
)

// EffectiveKeyStatus is the evaluated state of a key at a point in time.
type EffectiveKeyStatus string

const (
	KeyActive  EffectiveKeyStatus = "active"
	KeyRevoked EffectiveKeyStatus = "revoked"
	KeyExpired EffectiveKeyStatus = "expired"
)

// APIKey is a delegated credential with a scoped permission set.
// The plaintext secret is shown once at issuance; only its SHA-256 digest
// is stored.
type APIKey struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Name         string       `json:"name"`
	Prefix       string       `json:"prefix"` // first chars of the plaintext key, for display
	SecretHash   string       `json:"-"`
	Permissions  []Permission `json:"permissions"`
	Status       KeyStatus    `json:"-"`
	ExpiresAt    time.Time    `json:"expires_at"`
	RolledFromID *uuid.UUID   `json:"rolled_from_id,omitempty"`
	LastUsedAt   *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// EffectiveStatus evaluates the key's state at now. Revocation wins over
// expiry; expiry is computed, never read from a stored flag.
func (k *APIKey) EffectiveStatus(now time.Time) EffectiveKeyStatus {
	if k.Status == KeyStatusRevoked {
		return KeyRevoked
	}
	if now.After(k.ExpiresAt) {
		return KeyExpired
	}
	return KeyActive
}

// HasPermission reports whether the key grants p.
func (k *APIKey) HasPermission(p Permission) bool {
	for _, granted := range k.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

// Masked returns a display-safe form of the key, e.g. "wl_A1b2C3d4...".
func (k *APIKey) Masked() string {
	if k.Prefix == "" {
		return "***"
	}
	return k.Prefix + "..."
}

const apiKeyPrefix = "wl_"

// NewAPIKeySecret generates a plaintext API key: "wl_" + 43 url-safe chars.
func NewAPIKeySecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("api key entropy: %v", err))
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(b)
}

// HashAPIKeySecret returns the hex SHA-256 digest stored for lookup.
// A plain digest (not a salted KDF) keeps validation O(1): the secret itself
// carries 256 bits of entropy, so offline guessing is not a concern.
func HashAPIKeySecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// KeyDisplayPrefix returns the leading chars of a plaintext key kept for
// display purposes.
func KeyDisplayPrefix(secret string) string {
	if len(secret) <= 8 {
		return secret
	}
	return secret[:8]
}
