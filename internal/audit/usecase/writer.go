package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
)

// WriterConfig holds audit writer batching settings.
type WriterConfig struct {
	// BatchSize triggers an immediate flush when the queue reaches it.
	BatchSize int

	// FlushInterval is the ticker period for flushing partial batches.
	FlushInterval time.Duration
}

// writer implements the Writer interface.
//
// Two locks: mu guards the queue, flushMu serializes flushes so at most one
// batch insert is in flight. Records enqueued during a flush land in the fresh
// queue and are picked up by the next flush.
type writer struct {
	config WriterConfig
	repo   AuditRepository
	logger *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu    sync.Mutex
	queue []*auditDomain.Record

	flushMu sync.Mutex
}

// NewWriter creates a new batched audit log writer.
func NewWriter(config WriterConfig, repo AuditRepository, logger *slog.Logger) Writer {
	return &writer{
		config: config,
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// LogEncryption records an encrypt or decrypt operation.
func (w *writer) LogEncryption(ctx context.Context, event EncryptionEvent) {
	w.enqueue(ctx, &auditDomain.Record{
		Operation:      event.Operation,
		DataType:       event.DataType,
		RecordID:       event.RecordID,
		OrganizationID: event.Actor.OrganizationID,
		UserID:         event.Actor.UserID,
		UserRole:       event.Actor.UserRole,
		KeyID:          event.KeyID,
		KeyVersion:     event.KeyVersion,
		FieldsAccessed: event.Fields,
		Success:        event.Err == nil,
		ErrorMessage:   errMessage(event.Err),
	})
}

// LogDataAccess records a create/read/update/delete on a protected record.
func (w *writer) LogDataAccess(ctx context.Context, event DataAccessEvent) {
	w.enqueue(ctx, &auditDomain.Record{
		Operation:      event.Operation,
		DataType:       event.DataType,
		RecordID:       event.RecordID,
		OrganizationID: event.Actor.OrganizationID,
		UserID:         event.Actor.UserID,
		UserRole:       event.Actor.UserRole,
		AccessReason:   event.AccessReason,
		FieldsAccessed: event.Fields,
		Success:        event.Err == nil,
		ErrorMessage:   errMessage(event.Err),
	})
}

// LogKeyManagement records a key lifecycle action. Batch actions persist their
// outcome tally alongside the action name.
func (w *writer) LogKeyManagement(ctx context.Context, event KeyManagementEvent) {
	reason := event.Action
	if event.Counts != nil {
		reason = fmt.Sprintf("%s processed=%d succeeded=%d failed=%d",
			event.Action, event.Counts.Processed, event.Counts.Succeeded, event.Counts.Failed)
	}

	w.enqueue(ctx, &auditDomain.Record{
		Operation:      auditDomain.OperationKeyManagement,
		OrganizationID: event.Actor.OrganizationID,
		UserID:         event.Actor.UserID,
		UserRole:       event.Actor.UserRole,
		KeyID:          event.KeyID,
		KeyVersion:     event.KeyVersion,
		AccessReason:   reason,
		Success:        event.Err == nil,
		ErrorMessage:   errMessage(event.Err),
	})
}

// LogAuthentication records an authentication attempt.
func (w *writer) LogAuthentication(ctx context.Context, event AuthenticationEvent) {
	w.enqueue(ctx, &auditDomain.Record{
		Operation:      auditDomain.OperationAuthentication,
		OrganizationID: event.Actor.OrganizationID,
		UserID:         event.Actor.UserID,
		UserRole:       event.Actor.UserRole,
		AccessReason:   event.Reason,
		Success:        event.Err == nil,
		ErrorMessage:   errMessage(event.Err),
	})
}

// LogAuthorizationFailure records a denied access. Always unsuccessful.
func (w *writer) LogAuthorizationFailure(ctx context.Context, event AuthorizationFailureEvent) {
	w.enqueue(ctx, &auditDomain.Record{
		Operation:      auditDomain.OperationAuthorizationFailure,
		DataType:       event.DataType,
		RecordID:       event.RecordID,
		OrganizationID: event.Actor.OrganizationID,
		UserID:         event.Actor.UserID,
		UserRole:       event.Actor.UserRole,
		AccessReason:   event.Reason,
		Success:        false,
	})
}

// enqueue stamps and queues a record, flushing when the batch size is reached.
// Flush failures are logged and swallowed; audit logging never fails callers.
func (w *writer) enqueue(ctx context.Context, record *auditDomain.Record) {
	record.ID = uuid.Must(uuid.NewV7())
	record.CreatedAt = w.now().UTC()

	w.mu.Lock()
	w.queue = append(w.queue, record)
	full := len(w.queue) >= w.config.BatchSize
	w.mu.Unlock()

	if full {
		if err := w.Flush(ctx); err != nil {
			w.logger.Error("failed to flush audit batch", slog.Any("error", err))
		}
	}
}

// Flush persists all queued records in a single batch insert. On failure the
// batch is prepended back to the queue; a crash before the retry loses those
// records, which the design accepts in exchange for never blocking callers.
func (w *writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := w.repo.CreateBatch(ctx, batch); err != nil {
		w.mu.Lock()
		w.queue = append(batch, w.queue...)
		w.mu.Unlock()
		return err
	}
	return nil
}

// Start runs the periodic flush loop until the context is canceled.
func (w *writer) Start(ctx context.Context) {
	w.logger.Info("starting audit log writer",
		slog.Int("batch_size", w.config.BatchSize),
		slog.Duration("flush_interval", w.config.FlushInterval),
	)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping audit log writer")
			if err := w.Close(); err != nil {
				w.logger.Error("failed to drain audit queue", slog.Any("error", err))
			}
			return
		case <-ticker.C:
			if err := w.Flush(ctx); err != nil {
				w.logger.Error("failed to flush audit batch", slog.Any("error", err))
			}
		}
	}
}

// Close drains any remaining queued records.
func (w *writer) Close() error {
	return w.Flush(context.Background())
}

func errMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
