// Package usecase implements the key rotation orchestrator: rotation policy
// checks, data key rotation with record re-encryption, and organization key
// rotation with data key re-wrapping.
package usecase

import (
	"context"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// Status describes how a key stands against the rotation policy.
type Status struct {
	KeyID              string
	KeyType            keysDomain.KeyType
	AgeDays            int
	RotationPeriodDays int
	NeedsRotation      bool
	DaysUntilRotation  int
	Overdue            bool
}

// Result tallies a rotation run. Per-record failures never abort the run; they
// are counted and the first few captured in Errors.
type Result struct {
	OldKeyID     string
	NewKeyID     string
	Processed    int
	SuccessCount int
	ErrorCount   int
	Errors       []string
	Success      bool
}

// Orchestrator drives key rotation against the configured policy.
type Orchestrator interface {
	// CheckRotationStatus evaluates a key against the rotation policy.
	CheckRotationStatus(ctx context.Context, keyID string) (*Status, error)

	// ListKeysNeedingRotation returns the status of every active key of an
	// organization that is due for rotation.
	ListKeysNeedingRotation(ctx context.Context, organizationID int64) ([]*Status, error)

	// RotateDataKey replaces an active data key with a new version and
	// re-encrypts every record referencing the old key. The old key is
	// deprecated, not retired, so decryption keeps working through the grace
	// period.
	RotateDataKey(ctx context.Context, oldKeyID string, actor auditDomain.Actor) (*Result, error)

	// RotateOrganizationKey replaces an active organization key and re-wraps
	// the organization's usable data keys under it. Record payloads are not
	// touched.
	RotateOrganizationKey(ctx context.Context, oldKeyID string, actor auditDomain.Actor) (*Result, error)

	// RetireDeprecatedKeys retires the organization's deprecated keys whose
	// grace period has elapsed and returns how many were retired.
	RetireDeprecatedKeys(ctx context.Context, organizationID int64) (int, error)
}
