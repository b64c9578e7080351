package models

import (
	"time"
)

// KeyStatus represents the lifecycle state of an API key.
// Transitions are monotonic: active -> rotated -> revoked, active -> revoked.
// Revoked is terminal.
type KeyStatus string

const (
	// KeyStatusActive indicates the key validates normally
	KeyStatusActive KeyStatus = "active"
	// KeyStatusRotated indicates the key was superseded but may still
	// validate inside its grace window
	KeyStatusRotated KeyStatus = "rotated"
	// KeyStatusRevoked indicates the key is permanently unusable
	KeyStatusRevoked KeyStatus = "revoked"
)

// Revocation reasons recorded on the key when it leaves service
const (
	RevokeReasonExpired         = "expired"
	RevokeReasonRotationExpired = "rotation_expired"
)

// Key represents an opaque bearer credential and its metadata.
// The secret is only populated on the record returned from creation and
// rotation; the persisted metadata record never contains it.
type Key struct {
	ID        string            `json:"id"`
	Secret    string            `json:"secret,omitempty"`
	Name      string            `json:"name"`
	Owner     string            `json:"owner"`
	Email     string            `json:"email,omitempty"`
	Scopes    []string          `json:"scopes"`
	Status    KeyStatus         `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	CreatedBy string            `json:"created_by,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// ExpiresAt zero means the key never expires
	ExpiresAt  time.Time  `json:"expires_at,omitzero"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	// Rotation linkage
	SuccessorID    string     `json:"successor_id,omitempty"`
	PredecessorID  string     `json:"predecessor_id,omitempty"`
	GraceExpiresAt *time.Time `json:"grace_expires_at,omitempty"`

	// Revocation record
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedBy     string     `json:"revoked_by,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
}

// IsActive returns true if the key status is active
func (k *Key) IsActive() bool {
	return k.Status == KeyStatusActive
}

// InGraceWindow reports whether a rotated key is still inside its
// dual-validity window at the given instant.
func (k *Key) InGraceWindow(now time.Time) bool {
	return k.Status == KeyStatusRotated && k.GraceExpiresAt != nil && now.Before(*k.GraceExpiresAt)
}

// Expired reports whether the key has an expiry and it has elapsed
func (k *Key) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// Sanitized returns a copy with the one-time secret removed
func (k *Key) Sanitized() *Key {
	clean := *k
	clean.Secret = ""
	return &clean
}
