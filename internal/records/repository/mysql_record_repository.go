package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/clinicbase/phivault/internal/database"
	apperrors "github.com/clinicbase/phivault/internal/errors"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
)

// MySQLRecordRepository implements EncryptedRecord persistence for MySQL
// databases. Record IDs are stored as their canonical string form.
type MySQLRecordRepository struct {
	db *sql.DB
}

// NewMySQLRecordRepository creates a new MySQL EncryptedRecord repository instance.
func NewMySQLRecordRepository(db *sql.DB) *MySQLRecordRepository {
	return &MySQLRecordRepository{db: db}
}

// Create inserts a new encrypted record into the MySQL database.
func (m *MySQLRecordRepository) Create(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
) error {
	querier := database.GetTx(ctx, m.db)

	encryptedData, blindIndexes, err := marshalMaps(record)
	if err != nil {
		return err
	}

	query := `INSERT INTO encrypted_records (` + recordColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		record.ID.String(),
		record.OrganizationID,
		record.Kind,
		encryptedData,
		blindIndexes,
		record.EncryptionKeyID,
		record.EncryptionVersion,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create encrypted record")
	}
	return nil
}

// Get retrieves an encrypted record by its ID.
func (m *MySQLRecordRepository) Get(
	ctx context.Context,
	recordID uuid.UUID,
) (*recordsDomain.EncryptedRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + `
			  FROM encrypted_records
			  WHERE id = ?`

	record, err := scanMySQLRecord(querier.QueryRowContext(ctx, query, recordID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, recordsDomain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get encrypted record")
	}
	return record, nil
}

// ListByEncryptionKeyID retrieves all records encrypted under the given key.
func (m *MySQLRecordRepository) ListByEncryptionKeyID(
	ctx context.Context,
	keyID string,
) ([]*recordsDomain.EncryptedRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + `
			  FROM encrypted_records
			  WHERE encryption_key_id = ?
			  ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, keyID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list encrypted records by key")
	}
	defer rows.Close()

	return collectMySQLRecords(rows)
}

// UpdateEncryption replaces a record's encrypted payload conditional on the
// expected encryption_version.
func (m *MySQLRecordRepository) UpdateEncryption(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
	expectedVersion int,
) error {
	querier := database.GetTx(ctx, m.db)

	encryptedData, blindIndexes, err := marshalMaps(record)
	if err != nil {
		return err
	}

	query := `UPDATE encrypted_records
			  SET encrypted_data = ?, blind_indexes = ?, encryption_key_id = ?,
				  encryption_version = ?, updated_at = ?
			  WHERE id = ? AND encryption_version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		encryptedData,
		blindIndexes,
		record.EncryptionKeyID,
		record.EncryptionVersion,
		record.UpdatedAt,
		record.ID.String(),
		expectedVersion,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update record encryption")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to check record update result")
	}
	if rowsAffected == 0 {
		return recordsDomain.ErrVersionConflict
	}
	return nil
}

// SearchByBlindIndex retrieves active records of a kind whose blind index for
// the given field equals the digest.
func (m *MySQLRecordRepository) SearchByBlindIndex(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	field string,
	digest string,
) ([]*recordsDomain.EncryptedRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + `
			  FROM encrypted_records
			  WHERE organization_id = ? AND kind = ? AND status = ?
				AND JSON_UNQUOTE(JSON_EXTRACT(blind_indexes, CONCAT('$.', ?))) = ?
			  ORDER BY created_at ASC`

	rows, err := querier.QueryContext(
		ctx,
		query,
		organizationID,
		kind,
		recordsDomain.RecordStatusActive,
		field,
		digest,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to search records by blind index")
	}
	defer rows.Close()

	return collectMySQLRecords(rows)
}

func scanMySQLRecord(s scanner) (*recordsDomain.EncryptedRecord, error) {
	var record recordsDomain.EncryptedRecord
	var id string
	var encryptedData, blindIndexes []byte

	err := s.Scan(
		&id,
		&record.OrganizationID,
		&record.Kind,
		&encryptedData,
		&blindIndexes,
		&record.EncryptionKeyID,
		&record.EncryptionVersion,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := record.ID.UnmarshalText([]byte(id)); err != nil {
		return nil, apperrors.Wrap(err, "failed to parse record id")
	}
	if err := json.Unmarshal(encryptedData, &record.EncryptedData); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal encrypted data")
	}
	if err := json.Unmarshal(blindIndexes, &record.BlindIndexes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal blind indexes")
	}
	return &record, nil
}

func collectMySQLRecords(rows *sql.Rows) ([]*recordsDomain.EncryptedRecord, error) {
	var records []*recordsDomain.EncryptedRecord
	for rows.Next() {
		record, err := scanMySQLRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan encrypted record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate encrypted records")
	}
	return records, nil
}
