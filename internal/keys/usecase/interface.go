// Package usecase implements the key hierarchy manager: creation and resolution
// of organization and data keys, with an in-memory TTL cache over unwrapped key
// material so hot paths avoid a database round trip and a master-key unwrap per
// record operation.
package usecase

import (
	"context"
	"time"

	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// KeyRepository defines the interface for encryption key persistence.
//
// Implementations exist for PostgreSQL and MySQL. All methods are
// transaction-aware through context propagation, which rotation uses to
// deprecate an old key and create its replacement atomically.
type KeyRepository interface {
	// Create stores a new encryption key. Returns ErrActiveKeyExists when an
	// active key already covers the same scope.
	Create(ctx context.Context, key *keysDomain.EncryptionKey) error

	// Get retrieves a key by its opaque key ID.
	Get(ctx context.Context, keyID string) (*keysDomain.EncryptionKey, error)

	// GetActiveDataKey retrieves the single active data key for an organization
	// and data type.
	GetActiveDataKey(ctx context.Context, organizationID int64, dataType string) (*keysDomain.EncryptionKey, error)

	// GetActiveOrganizationKey retrieves the active organization key.
	GetActiveOrganizationKey(ctx context.Context, organizationID int64) (*keysDomain.EncryptionKey, error)

	// ListByOrganization retrieves all keys scoped to an organization, newest first.
	ListByOrganization(ctx context.Context, organizationID int64) ([]*keysDomain.EncryptionKey, error)

	// ListActive retrieves every active key of the given type across all organizations.
	ListActive(ctx context.Context, keyType keysDomain.KeyType) ([]*keysDomain.EncryptionKey, error)

	// ListUsableDataKeys retrieves the active and deprecated data keys of an organization.
	ListUsableDataKeys(ctx context.Context, organizationID int64) ([]*keysDomain.EncryptionKey, error)

	// Deprecate marks a key as deprecated and records the rotation time.
	Deprecate(ctx context.Context, keyID string, rotatedAt time.Time) error

	// Retire marks a key as retired after its grace period.
	Retire(ctx context.Context, keyID string, retiredAt time.Time) error

	// UpdateWrappedKey replaces the wrapped material of a key and bumps its version.
	UpdateWrappedKey(ctx context.Context, keyID string, wrappedKey string) error
}

// ResolvedKey pairs a stored key with its unwrapped plaintext material.
//
// Material may be shared with the hierarchy's cache; callers must treat it as
// read-only and must not zero it.
type ResolvedKey struct {
	Key      *keysDomain.EncryptionKey
	Material []byte
}

// KeyHierarchy defines the key hierarchy manager.
//
// It owns the envelope hierarchy: data keys are wrapped under their
// organization key, organization keys under the master key. Unwrapped material
// is cached with a TTL; at most one concurrent unwrap runs per key ID.
type KeyHierarchy interface {
	// CreateOrganizationKey generates, wraps and persists a new organization key,
	// records a key-management audit event and seeds the material cache.
	// Returns ErrActiveKeyExists if the organization already has an active key.
	CreateOrganizationKey(ctx context.Context, organizationID int64, alg keysDomain.Algorithm) (*keysDomain.EncryptionKey, error)

	// CreateDataKey generates a new data key for the organization and data type,
	// wrapped under the organization's active key. The organization key must
	// exist first. Audited and cache-seeded like CreateOrganizationKey.
	CreateDataKey(ctx context.Context, organizationID int64, dataType string, alg keysDomain.Algorithm) (*keysDomain.EncryptionKey, error)

	// ResolveDataKey returns the active data key for encryption of new records,
	// with its plaintext material.
	ResolveDataKey(ctx context.Context, organizationID int64, dataType string) (*ResolvedKey, error)

	// ResolveKey returns any usable key by ID for decryption of existing
	// records. Retired keys resolve to ErrKeyRetired.
	ResolveKey(ctx context.Context, keyID string) (*ResolvedKey, error)

	// Invalidate drops a key from the material cache. Rotation calls this after
	// deprecating a key so stale material does not outlive the grace decision.
	Invalidate(keyID string)

	// Start runs the periodic cache sweep until the context is canceled.
	Start(ctx context.Context)

	// Close evicts and zeroes all cached material.
	Close()
}
