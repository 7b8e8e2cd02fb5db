// Package usecase implements record protection: sealing plaintext field maps
// into encrypted records, opening them back, and equality search over blind
// indexes. Every operation resolves keys through the key hierarchy and reports
// to the audit writer and business metrics.
package usecase

import (
	"context"

	"github.com/google/uuid"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
)

// RecordRepository defines the interface for encrypted record persistence.
type RecordRepository interface {
	// Create stores a new encrypted record.
	Create(ctx context.Context, record *recordsDomain.EncryptedRecord) error

	// Get retrieves an encrypted record by ID.
	Get(ctx context.Context, recordID uuid.UUID) (*recordsDomain.EncryptedRecord, error)

	// ListByEncryptionKeyID retrieves all records encrypted under a key.
	ListByEncryptionKeyID(ctx context.Context, keyID string) ([]*recordsDomain.EncryptedRecord, error)

	// UpdateEncryption replaces a record's encrypted payload conditional on the
	// expected encryption_version. Returns ErrVersionConflict when a concurrent
	// writer got there first.
	UpdateEncryption(ctx context.Context, record *recordsDomain.EncryptedRecord, expectedVersion int) error

	// SearchByBlindIndex retrieves active records whose blind index for the
	// field matches the digest.
	SearchByBlindIndex(ctx context.Context, organizationID int64, kind fieldcrypt.RecordKind, field, digest string) ([]*recordsDomain.EncryptedRecord, error)
}

// Protector seals, opens and searches encrypted records.
type Protector interface {
	// Seal encrypts the sensitive fields of a plaintext value map under the
	// organization's active data key, computes blind indexes for the kind's
	// searchable fields, and persists the record.
	Seal(ctx context.Context, organizationID int64, kind fieldcrypt.RecordKind, values map[string]string, actor auditDomain.Actor) (*recordsDomain.EncryptedRecord, error)

	// Open decrypts a stored record. Per-field decryption failures are returned
	// in FieldErrors alongside the fields that did decrypt; the caller decides
	// whether partial output is acceptable.
	Open(ctx context.Context, recordID uuid.UUID, accessReason string, actor auditDomain.Actor) (map[string]string, fieldcrypt.FieldErrors, error)

	// Search finds active records of a kind whose searchable field equals the
	// given plaintext value, by equality over its blind index digest.
	Search(ctx context.Context, organizationID int64, kind fieldcrypt.RecordKind, field, value string, actor auditDomain.Actor) ([]*recordsDomain.EncryptedRecord, error)
}
