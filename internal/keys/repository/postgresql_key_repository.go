// Package repository implements persistence for the encryption key hierarchy.
//
// Each repository type has a PostgreSQL and a MySQL implementation sharing the
// same behavior. All methods are transaction-aware via database.GetTx(): when
// the context carries a transaction, operations join it, which rotation relies
// on to deprecate an old key and activate its replacement atomically.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/clinicbase/phivault/internal/database"
	apperrors "github.com/clinicbase/phivault/internal/errors"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

const keyColumns = `key_id, key_type, algorithm, wrapped_key, organization_id, data_type,
		   version, status, created_at, rotated_at, retired_at`

// PostgreSQLKeyRepository implements encryption key persistence for PostgreSQL.
type PostgreSQLKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLKeyRepository creates a new PostgreSQL key repository.
func NewPostgreSQLKeyRepository(db *sql.DB) *PostgreSQLKeyRepository {
	return &PostgreSQLKeyRepository{db: db}
}

// Create inserts a new encryption key. A second active key for the same scope
// violates the partial unique index and returns ErrActiveKeyExists.
func (p *PostgreSQLKeyRepository) Create(ctx context.Context, key *keysDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO encryption_keys
		(key_id, key_type, algorithm, wrapped_key, organization_id, data_type, version, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.KeyID,
		key.KeyType,
		key.Algorithm,
		key.WrappedKey,
		key.OrganizationID,
		key.DataType,
		key.Version,
		key.Status,
		key.CreatedAt,
	)
	if err != nil {
		if isPostgreSQLUniqueViolation(err) {
			return keysDomain.ErrActiveKeyExists
		}
		return apperrors.Wrap(err, "failed to create encryption key")
	}
	return nil
}

// Get retrieves an encryption key by its key ID.
func (p *PostgreSQLKeyRepository) Get(
	ctx context.Context,
	keyID string,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys WHERE key_id = $1`

	key, err := scanKey(querier.QueryRowContext(ctx, query, keyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get encryption key")
	}
	return key, nil
}

// GetActiveDataKey retrieves the single active data key for an organization and
// data type. Returns ErrKeyNotFound when the scope has no active key yet.
func (p *PostgreSQLKeyRepository) GetActiveDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = $1 AND organization_id = $2 AND data_type = $3 AND status = $4`

	key, err := scanKey(querier.QueryRowContext(
		ctx, query, keysDomain.KeyTypeData, organizationID, dataType, keysDomain.KeyStatusActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get active data key")
	}
	return key, nil
}

// GetActiveOrganizationKey retrieves the active organization key for an organization.
func (p *PostgreSQLKeyRepository) GetActiveOrganizationKey(
	ctx context.Context,
	organizationID int64,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = $1 AND organization_id = $2 AND status = $3`

	key, err := scanKey(querier.QueryRowContext(
		ctx, query, keysDomain.KeyTypeOrganization, organizationID, keysDomain.KeyStatusActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get active organization key")
	}
	return key, nil
}

// ListByOrganization retrieves all keys scoped to an organization, newest first.
func (p *PostgreSQLKeyRepository) ListByOrganization(
	ctx context.Context,
	organizationID int64,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE organization_id = $1
		ORDER BY created_at DESC`

	rows, err := querier.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list organization keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListActive retrieves every active key of the given type across all
// organizations. Rotation status scans use this to find keys past their
// rotation period.
func (p *PostgreSQLKeyRepository) ListActive(
	ctx context.Context,
	keyType keysDomain.KeyType,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = $1 AND status = $2
		ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, keyType, keysDomain.KeyStatusActive)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list active keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListUsableDataKeys retrieves the active and deprecated data keys of an
// organization. Organization key rotation re-wraps every one of them.
func (p *PostgreSQLKeyRepository) ListUsableDataKeys(
	ctx context.Context,
	organizationID int64,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = $1 AND organization_id = $2 AND status IN ($3, $4)
		ORDER BY created_at ASC`

	rows, err := querier.QueryContext(
		ctx, query,
		keysDomain.KeyTypeData, organizationID,
		keysDomain.KeyStatusActive, keysDomain.KeyStatusDeprecated,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list usable data keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// Deprecate marks a key as deprecated and records the rotation time. A
// deprecated key can still decrypt but never encrypts new data.
func (p *PostgreSQLKeyRepository) Deprecate(
	ctx context.Context,
	keyID string,
	rotatedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE encryption_keys SET status = $1, rotated_at = $2 WHERE key_id = $3`

	result, err := querier.ExecContext(ctx, query, keysDomain.KeyStatusDeprecated, rotatedAt, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to deprecate key")
	}
	return requireOneRow(result, "deprecate key")
}

// Retire marks a key as retired after its grace period. Retired keys are kept
// for audit history but can no longer decrypt.
func (p *PostgreSQLKeyRepository) Retire(
	ctx context.Context,
	keyID string,
	retiredAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE encryption_keys SET status = $1, retired_at = $2 WHERE key_id = $3`

	result, err := querier.ExecContext(ctx, query, keysDomain.KeyStatusRetired, retiredAt, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to retire key")
	}
	return requireOneRow(result, "retire key")
}

// UpdateWrappedKey replaces the wrapped material of a key and bumps its
// version. Organization key rotation uses this to re-wrap data keys under the
// new organization key without changing their plaintext material.
func (p *PostgreSQLKeyRepository) UpdateWrappedKey(
	ctx context.Context,
	keyID string,
	wrappedKey string,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE encryption_keys SET wrapped_key = $1, version = version + 1 WHERE key_id = $2`

	result, err := querier.ExecContext(ctx, query, wrappedKey, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update wrapped key")
	}
	return requireOneRow(result, "update wrapped key")
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*keysDomain.EncryptionKey, error) {
	var key keysDomain.EncryptionKey
	err := row.Scan(
		&key.KeyID,
		&key.KeyType,
		&key.Algorithm,
		&key.WrappedKey,
		&key.OrganizationID,
		&key.DataType,
		&key.Version,
		&key.Status,
		&key.CreatedAt,
		&key.RotatedAt,
		&key.RetiredAt,
	)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func collectKeys(rows *sql.Rows) ([]*keysDomain.EncryptionKey, error) {
	var keys []*keysDomain.EncryptionKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan encryption key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate encryption keys")
	}
	return keys, nil
}

func requireOneRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrapf(err, "failed to %s", op)
	}
	if affected == 0 {
		return keysDomain.ErrKeyNotFound
	}
	return nil
}

// isPostgreSQLUniqueViolation checks if the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isPostgreSQLUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
