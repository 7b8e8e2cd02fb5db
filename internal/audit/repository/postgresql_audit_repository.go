// Package repository implements persistence for encryption audit logs.
//
// Batch inserts are the primary write path: the audit writer accumulates
// records in memory and lands a whole batch in one multi-row INSERT.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	"github.com/clinicbase/phivault/internal/database"
	apperrors "github.com/clinicbase/phivault/internal/errors"
)

const auditColumns = `id, operation, data_type, record_id, organization_id, user_id, user_role,
		   key_id, key_version, access_reason, fields_accessed, success, error_message, created_at`

// PostgreSQLAuditRepository implements audit log persistence for PostgreSQL.
type PostgreSQLAuditRepository struct {
	db *sql.DB
}

// NewPostgreSQLAuditRepository creates a new PostgreSQL audit repository.
func NewPostgreSQLAuditRepository(db *sql.DB) *PostgreSQLAuditRepository {
	return &PostgreSQLAuditRepository{db: db}
}

// CreateBatch inserts a batch of audit records in a single multi-row INSERT.
func (p *PostgreSQLAuditRepository) CreateBatch(
	ctx context.Context,
	records []*auditDomain.Record,
) error {
	if len(records) == 0 {
		return nil
	}

	querier := database.GetTx(ctx, p.db)

	const fieldCount = 14
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*fieldCount)

	for i, record := range records {
		fieldsJSON, err := marshalFields(record.FieldsAccessed)
		if err != nil {
			return err
		}

		base := i * fieldCount
		marks := make([]string, fieldCount)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")

		args = append(args,
			record.ID,
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

// List retrieves audit records for an organization within a time window,
// oldest first.
func (p *PostgreSQLAuditRepository) List(
	ctx context.Context,
	filter auditDomain.Filter,
) ([]*auditDomain.Record, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + auditColumns + ` FROM encryption_audit_logs
		WHERE organization_id = $1 AND created_at >= $2 AND created_at < $3
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
		record, err := scanAuditRecord(rows)
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

// DeleteBefore removes an organization's audit records older than the cutoff
// and returns how many rows were deleted.
func (p *PostgreSQLAuditRepository) DeleteBefore(
	ctx context.Context,
	organizationID int64,
	before time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM encryption_audit_logs WHERE organization_id = $1 AND created_at < $2`

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

func marshalFields(fields []string) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal fields accessed")
	}
	return data, nil
}

func scanAuditRecord(rows *sql.Rows) (*auditDomain.Record, error) {
	var record auditDomain.Record
	var fieldsJSON []byte

	err := rows.Scan(
		&record.ID,
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

	if fieldsJSON != nil {
		if err := json.Unmarshal(fieldsJSON, &record.FieldsAccessed); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal fields accessed")
		}
	}

	return &record, nil
}
