// Package usecase implements the audit log writer and compliance reporting.
//
// The writer buffers records in memory and lands them in batches so audit
// logging stays off the hot path of encryption operations. Logging is
// fire-and-forget: a failure to persist audit records is itself logged but
// never fails the operation being audited.
package usecase

import (
	"context"
	"time"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
)

// AuditRepository defines the interface for audit log persistence.
type AuditRepository interface {
	// CreateBatch inserts a batch of audit records in one statement.
	CreateBatch(ctx context.Context, records []*auditDomain.Record) error

	// List retrieves audit records for an organization within a time window,
	// oldest first.
	List(ctx context.Context, filter auditDomain.Filter) ([]*auditDomain.Record, error)

	// DeleteBefore removes an organization's records older than the cutoff and
	// returns the number of rows deleted.
	DeleteBefore(ctx context.Context, organizationID int64, before time.Time) (int64, error)
}

// EncryptionEvent describes an encrypt or decrypt operation to audit.
type EncryptionEvent struct {
	Operation  auditDomain.Operation // OperationEncrypt or OperationDecrypt
	DataType   string
	RecordID   *string
	Actor      auditDomain.Actor
	KeyID      string
	KeyVersion uint
	Fields     []string
	Err        error
}

// DataAccessEvent describes a create/read/update/delete on a protected record.
type DataAccessEvent struct {
	Operation    auditDomain.Operation
	DataType     string
	RecordID     *string
	Actor        auditDomain.Actor
	AccessReason string
	Fields       []string
	Err          error
}

// ActionCounts summarizes a batch key action, such as the records re-encrypted
// by a rotation.
type ActionCounts struct {
	Processed int
	Succeeded int
	Failed    int
}

// KeyManagementEvent describes a key lifecycle action.
type KeyManagementEvent struct {
	Action     string // e.g. "generate_data_key", "rotate_data_key"
	Actor      auditDomain.Actor
	KeyID      string
	KeyVersion uint

	// Counts carries the outcome tally of a batch action; nil for single-key
	// actions like key generation.
	Counts *ActionCounts

	Err error
}

// AuthenticationEvent describes an authentication attempt reported by an outer layer.
type AuthenticationEvent struct {
	Actor  auditDomain.Actor
	Reason string
	Err    error
}

// AuthorizationFailureEvent describes a denied access to a protected resource.
type AuthorizationFailureEvent struct {
	DataType string
	RecordID *string
	Actor    auditDomain.Actor
	Reason   string
}

// Writer defines the batched audit log writer.
//
// Enqueued records flush when the queue reaches the configured batch size or
// on the periodic ticker, whichever comes first.
type Writer interface {
	LogEncryption(ctx context.Context, event EncryptionEvent)
	LogDataAccess(ctx context.Context, event DataAccessEvent)
	LogKeyManagement(ctx context.Context, event KeyManagementEvent)
	LogAuthentication(ctx context.Context, event AuthenticationEvent)
	LogAuthorizationFailure(ctx context.Context, event AuthorizationFailureEvent)

	// Flush persists all queued records now. On failure the batch is requeued.
	Flush(ctx context.Context) error

	// Start runs the periodic flush loop until the context is canceled, then
	// drains the queue.
	Start(ctx context.Context)

	// Close drains any remaining queued records.
	Close() error
}

// Reporter generates compliance reports and enforces audit retention.
type Reporter interface {
	// GenerateComplianceReport aggregates an organization's audit activity over
	// a period and flags suspicious access patterns.
	GenerateComplianceReport(ctx context.Context, organizationID int64, start, end time.Time) (*Report, error)

	// CleanupExpiredLogs deletes records older than the cutoff and returns the
	// number deleted.
	CleanupExpiredLogs(ctx context.Context, organizationID int64, before time.Time) (int64, error)
}
