// Package domain defines the compliance audit log model.
//
// Audit records are append-only: created transiently by core operations,
// queued, persisted in batches, and never mutated afterwards. Retention is a
// compliance concern enforced by the cleanup operation, not by the writer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Operation classifies an audited action.
type Operation string

const (
	OperationEncrypt              Operation = "encrypt"
	OperationDecrypt              Operation = "decrypt"
	OperationCreate               Operation = "create"
	OperationRead                 Operation = "read"
	OperationUpdate               Operation = "update"
	OperationDelete               Operation = "delete"
	OperationKeyManagement        Operation = "key_management"
	OperationAuthentication       Operation = "authentication"
	OperationAuthorizationFailure Operation = "authorization_failure"
)

// Actor identifies who performed an audited operation.
type Actor struct {
	UserID         *int64
	UserRole       string
	OrganizationID int64
}

// Record is a single audit log entry.
type Record struct {
	ID             uuid.UUID
	Operation      Operation
	DataType       string  // Record category touched (empty for authentication events)
	RecordID       *string // Affected record, when one exists
	OrganizationID int64
	UserID         *int64
	UserRole       string
	KeyID          string // Key involved, for encrypt/decrypt/key-management
	KeyVersion     uint
	AccessReason   string
	FieldsAccessed []string // Stored as a JSON array
	Success        bool
	ErrorMessage   *string
	CreatedAt      time.Time
}

// RetentionDays is the default compliance retention period (7 years).
const RetentionDays = 2555

// Filter narrows audit log queries.
type Filter struct {
	OrganizationID int64
	Start          time.Time
	End            time.Time
}
