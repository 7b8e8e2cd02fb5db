package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	"github.com/clinicbase/phivault/internal/database"
	apperrors "github.com/clinicbase/phivault/internal/errors"
)

// MySQLAuditRepository implements audit log persistence for MySQL. UUIDs are
// stored as their string form rather than BINARY(16) since audit rows are
// write-once and never joined on.
type MySQLAuditRepository struct {
	db *sql.DB
}

// NewMySQLAuditRepository creates a new MySQL audit repository.
func NewMySQLAuditRepository(db *sql.DB) *MySQLAuditRepository {
	return &MySQLAuditRepository{db: db}
}

// CreateBatch inserts a batch of audit records in a single multi-row INSERT.
func (m *MySQLAuditRepository) CreateBatch(
	ctx context.Context,
	records []*auditDomain.Record,
) error {
	if len(records) == 0 {
		return nil
	}

	querier := database.GetTx(ctx, m.db)

	const fieldCount = 14
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*fieldCount)

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", fieldCount), ", ") + ")"
	for _, record := range records {
		fieldsJSON, err := marshalFields(record.FieldsAccessed)
		if err != nil {
			return err
		}

		placeholders = append(placeholders, row)
		args = append(args,
			record.ID.String(),
			record.Operation,
			record.DataType,
			record.RecordID,
			record.OrganizationID,
			record.UserID,
			record.UserRole,
			record.KeyID,
			record.KeyVersion,
			record.AccessReason,
			fieldsJSON,
			record.Success,
			record.ErrorMessage,
			record.CreatedAt,
		)
	}

	query := `INSERT INTO encryption_audit_logs (` + auditColumns + `) VALUES ` +
		strings.Join(placeholders, ", ")

	if _, err := querier.ExecContext(ctx, query, args...); err != nil {
		return apperrors.Wrap(err, "failed to create audit log batch")
	}
	return nil
}

// List retrieves audit records for an organization within a time window, oldest first.
func (m *MySQLAuditRepository) List(
	ctx context.Context,
	filter auditDomain.Filter,
) ([]*auditDomain.Record, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + auditColumns + ` FROM encryption_audit_logs
		WHERE organization_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, filter.OrganizationID, filter.Start, filter.End)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list audit logs")
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*auditDomain.Record, 0)
	for rows.Next() {
		record, err := scanMySQLAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate audit logs")
	}
	return records, nil
}

// DeleteBefore removes an organization's audit records older than the cutoff.
func (m *MySQLAuditRepository) DeleteBefore(
	ctx context.Context,
	organizationID int64,
	before time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM encryption_audit_logs WHERE organization_id = ? AND created_at < ?`

	result, err := querier.ExecContext(ctx, query, organizationID, before)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired audit logs")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count deleted audit logs")
	}
	return deleted, nil
}

func scanMySQLAuditRecord(rows *sql.Rows) (*auditDomain.Record, error) {
	var record auditDomain.Record
	var id string
	var fieldsJSON []byte

	err := rows.Scan(
		&id,
		&record.Operation,
		&record.DataType,
		&record.RecordID,
		&record.OrganizationID,
		&record.UserID,
		&record.UserRole,
		&record.KeyID,
		&record.KeyVersion,
		&record.AccessReason,
		&fieldsJSON,
		&record.Success,
		&record.ErrorMessage,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan audit log")
	}

	if err := record.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse audit log id")
	}

	if fieldsJSON != nil {
		if err := json.Unmarshal(fieldsJSON, &record.FieldsAccessed); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal fields accessed")
		}
	}

	return &record, nil
}
