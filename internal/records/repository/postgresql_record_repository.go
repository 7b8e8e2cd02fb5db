// Package repository implements encrypted record persistence for PostgreSQL
// and MySQL. Field maps are stored as JSON documents; the conditional update
// on encryption_version keeps rotation rewrites from clobbering concurrent
// application writes.
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

const recordColumns = `id, organization_id, kind, encrypted_data, blind_indexes,
		encryption_key_id, encryption_version, status, created_at, updated_at`

// PostgreSQLRecordRepository implements EncryptedRecord persistence for PostgreSQL databases.
type PostgreSQLRecordRepository struct {
	db *sql.DB
}

// NewPostgreSQLRecordRepository creates a new PostgreSQL EncryptedRecord repository instance.
func NewPostgreSQLRecordRepository(db *sql.DB) *PostgreSQLRecordRepository {
	return &PostgreSQLRecordRepository{db: db}
}

// Create inserts a new encrypted record into the PostgreSQL database.
func (p *PostgreSQLRecordRepository) Create(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
) error {
	querier := database.GetTx(ctx, p.db)

	encryptedData, blindIndexes, err := marshalMaps(record)
	if err != nil {
		return err
	}

	query := `INSERT INTO encrypted_records (` + recordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = querier.ExecContext(
		ctx,
		query,
		record.ID,
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
func (p *PostgreSQLRecordRepository) Get(
	ctx context.Context,
	recordID uuid.UUID,
) (*recordsDomain.EncryptedRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + `
			  FROM encrypted_records
			  WHERE id = $1`

	record, err := scanRecord(querier.QueryRowContext(ctx, query, recordID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, recordsDomain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get encrypted record")
	}
	return record, nil
}

// ListByEncryptionKeyID retrieves all records encrypted under the given key.
// Rotation uses this to enumerate its workload.
func (p *PostgreSQLRecordRepository) ListByEncryptionKeyID(
	ctx context.Context,
	keyID string,
) ([]*recordsDomain.EncryptedRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + `
			  FROM encrypted_records
			  WHERE encryption_key_id = $1
			  ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, keyID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list encrypted records by key")
	}
	defer rows.Close()

	return collectRecords(rows)
}

// UpdateEncryption replaces a record's encrypted payload, blind indexes and key
// reference, conditional on the expected encryption_version. A concurrent
// writer bumping the version first makes this return ErrVersionConflict.
func (p *PostgreSQLRecordRepository) UpdateEncryption(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
	expectedVersion int,
) error {
	querier := database.GetTx(ctx, p.db)

	encryptedData, blindIndexes, err := marshalMaps(record)
	if err != nil {
		return err
	}

	query := `UPDATE encrypted_records
			  SET encrypted_data = $1, blind_indexes = $2, encryption_key_id = $3,
				  encryption_version = $4, updated_at = $5
			  WHERE id = $6 AND encryption_version = $7`

	result, err := querier.ExecContext(
		ctx,
		query,
		encryptedData,
		blindIndexes,
		record.EncryptionKeyID,
		record.EncryptionVersion,
		record.UpdatedAt,
		record.ID,
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
func (p *PostgreSQLRecordRepository) SearchByBlindIndex(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	field string,
	digest string,
) ([]*recordsDomain.EncryptedRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + `
			  FROM encrypted_records
			  WHERE organization_id = $1 AND kind = $2 AND status = $3
				AND blind_indexes->>$4 = $5
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

	return collectRecords(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func marshalMaps(record *recordsDomain.EncryptedRecord) ([]byte, []byte, error) {
	encryptedData, err := json.Marshal(record.EncryptedData)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to marshal encrypted data")
	}
	blindIndexes, err := json.Marshal(record.BlindIndexes)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to marshal blind indexes")
	}
	return encryptedData, blindIndexes, nil
}

func scanRecord(s scanner) (*recordsDomain.EncryptedRecord, error) {
	var record recordsDomain.EncryptedRecord
	var encryptedData, blindIndexes []byte

	err := s.Scan(
		&record.ID,
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

	if err := json.Unmarshal(encryptedData, &record.EncryptedData); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal encrypted data")
	}
	if err := json.Unmarshal(blindIndexes, &record.BlindIndexes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal blind indexes")
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*recordsDomain.EncryptedRecord, error) {
	var records []*recordsDomain.EncryptedRecord
	for rows.Next() {
		record, err := scanRecord(rows)
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
