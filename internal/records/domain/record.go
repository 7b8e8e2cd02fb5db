// Package domain defines the encrypted record entity.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/clinicbase/phivault/internal/errors"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
)

// Record status values.
const (
	RecordStatusActive   = "active"
	RecordStatusArchived = "archived"
)

// ErrRecordNotFound is returned when an encrypted record cannot be found.
var ErrRecordNotFound = apperrors.Wrap(apperrors.ErrNotFound, "encrypted record not found")

// ErrVersionConflict is returned when a conditional update loses a concurrent
// write race on encryption_version.
var ErrVersionConflict = apperrors.Wrap(apperrors.ErrConflict, "encryption version conflict")

// EncryptedRecord is a protected record as stored at rest. Sensitive fields
// live in EncryptedData as envelope strings; BlindIndexes carries the keyed
// digests for the kind's searchable fields.
type EncryptedRecord struct {
	ID                uuid.UUID
	OrganizationID    int64
	Kind              fieldcrypt.RecordKind
	EncryptedData     map[string]string
	BlindIndexes      map[string]string
	EncryptionKeyID   string
	EncryptionVersion int
	Status            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
