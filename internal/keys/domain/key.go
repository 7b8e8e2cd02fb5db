// Package domain defines the key-hierarchy domain models for envelope encryption.
//
// The hierarchy is Master Key → Organization Key / Data Key → record fields. The
// master key is supplied by the environment and never persisted; organization and
// data keys are stored wrapped under the master key. Rotation replaces one tier
// without re-deriving the others.
package domain

import (
	"fmt"
	"time"
)

// EncryptionKey is a stored organization or data key, wrapped under the master key.
//
// KeyID embeds type, organization, data type and a timestamp for human operators
// but is treated as an opaque identifier everywhere in the code; no logic may
// parse it.
type EncryptionKey struct {
	KeyID          string    // Opaque, globally unique identifier
	KeyType        KeyType   // organization or data (master keys are never stored)
	Algorithm      Algorithm // AEAD cipher protecting data under this key
	WrappedKey     string    // Key material encrypted under the master key (envelope-encoded)
	OrganizationID *int64    // Nil for master keys only
	DataType       *string   // Set for data keys; identifies the record category protected
	Version        uint      // Monotonic, incremented on rotation
	Status         KeyStatus
	CreatedAt      time.Time
	RotatedAt      *time.Time
	RetiredAt      *time.Time
}

// Usable reports whether the key may still decrypt existing data.
func (k *EncryptionKey) Usable() bool {
	return k.Status == KeyStatusActive || k.Status == KeyStatusDeprecated
}

// NewDataKeyID builds a human-readable identifier for a data key.
func NewDataKeyID(organizationID int64, dataType string, now time.Time) string {
	return fmt.Sprintf("dek_%d_%s_%d", organizationID, dataType, now.UnixMilli())
}

// NewOrganizationKeyID builds a human-readable identifier for an organization key.
func NewOrganizationKeyID(organizationID int64, now time.Time) string {
	return fmt.Sprintf("ok_%d_%d", organizationID, now.UnixMilli())
}
