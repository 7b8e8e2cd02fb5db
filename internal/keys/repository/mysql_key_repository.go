package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/clinicbase/phivault/internal/database"
	apperrors "github.com/clinicbase/phivault/internal/errors"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// MySQLKeyRepository implements encryption key persistence for MySQL. It mirrors
// the PostgreSQL implementation with ? placeholders; active-key uniqueness is
// enforced by a generated-column unique index instead of a partial index.
type MySQLKeyRepository struct {
	db *sql.DB
}

// NewMySQLKeyRepository creates a new MySQL key repository.
func NewMySQLKeyRepository(db *sql.DB) *MySQLKeyRepository {
	return &MySQLKeyRepository{db: db}
}

// Create inserts a new encryption key.
func (m *MySQLKeyRepository) Create(ctx context.Context, key *keysDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO encryption_keys
		(key_id, key_type, algorithm, wrapped_key, organization_id, data_type, version, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

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
		if isMySQLUniqueViolation(err) {
			return keysDomain.ErrActiveKeyExists
		}
		return apperrors.Wrap(err, "failed to create encryption key")
	}
	return nil
}

// Get retrieves an encryption key by its key ID.
func (m *MySQLKeyRepository) Get(
	ctx context.Context,
	keyID string,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys WHERE key_id = ?`

	key, err := scanKey(querier.QueryRowContext(ctx, query, keyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keysDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get encryption key")
	}
	return key, nil
}

// GetActiveDataKey retrieves the active data key for an organization and data type.
func (m *MySQLKeyRepository) GetActiveDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = ? AND organization_id = ? AND data_type = ? AND status = ?`

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
func (m *MySQLKeyRepository) GetActiveOrganizationKey(
	ctx context.Context,
	organizationID int64,
) (*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = ? AND organization_id = ? AND status = ?`

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
func (m *MySQLKeyRepository) ListByOrganization(
	ctx context.Context,
	organizationID int64,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE organization_id = ?
		ORDER BY created_at DESC`

	rows, err := querier.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list organization keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListActive retrieves every active key of the given type across all organizations.
func (m *MySQLKeyRepository) ListActive(
	ctx context.Context,
	keyType keysDomain.KeyType,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = ? AND status = ?
		ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, keyType, keysDomain.KeyStatusActive)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list active keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListUsableDataKeys retrieves the active and deprecated data keys of an organization.
func (m *MySQLKeyRepository) ListUsableDataKeys(
	ctx context.Context,
	organizationID int64,
) ([]*keysDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + keyColumns + ` FROM encryption_keys
		WHERE key_type = ? AND organization_id = ? AND status IN (?, ?)
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

// Deprecate marks a key as deprecated and records the rotation time.
func (m *MySQLKeyRepository) Deprecate(
	ctx context.Context,
	keyID string,
	rotatedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE encryption_keys SET status = ?, rotated_at = ? WHERE key_id = ?`

	result, err := querier.ExecContext(ctx, query, keysDomain.KeyStatusDeprecated, rotatedAt, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to deprecate key")
	}
	return requireOneRow(result, "deprecate key")
}

// Retire marks a key as retired after its grace period.
func (m *MySQLKeyRepository) Retire(
	ctx context.Context,
	keyID string,
	retiredAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE encryption_keys SET status = ?, retired_at = ? WHERE key_id = ?`

	result, err := querier.ExecContext(ctx, query, keysDomain.KeyStatusRetired, retiredAt, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to retire key")
	}
	return requireOneRow(result, "retire key")
}

// UpdateWrappedKey replaces the wrapped material of a key and bumps its version.
func (m *MySQLKeyRepository) UpdateWrappedKey(
	ctx context.Context,
	keyID string,
	wrappedKey string,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE encryption_keys SET wrapped_key = ?, version = version + 1 WHERE key_id = ?`

	result, err := querier.ExecContext(ctx, query, wrappedKey, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update wrapped key")
	}
	return requireOneRow(result, "update wrapped key")
}

// isMySQLUniqueViolation checks if the error is a MySQL duplicate entry
// error (1062).
func isMySQLUniqueViolation(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
