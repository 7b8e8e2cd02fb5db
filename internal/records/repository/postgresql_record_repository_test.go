package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbase/phivault/internal/fieldcrypt"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
)

func newRecordMockDB(t *testing.T) (*PostgreSQLRecordRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgreSQLRecordRepository(db), mock
}

func testRecord() *recordsDomain.EncryptedRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &recordsDomain.EncryptedRecord{
		ID:             uuid.Must(uuid.NewV7()),
		OrganizationID: 42,
		Kind:           fieldcrypt.RecordCaseHistory,
		EncryptedData: map[string]string{
			"identification_name": "aa:bb:cc:dd",
			"chief_complaints":    "ee:ff:00:11",
		},
		BlindIndexes: map[string]string{
			"identification_name": "deadbeef",
		},
		EncryptionKeyID:   "dek_42_case_history_1700000000000",
		EncryptionVersion: 1,
		Status:            recordsDomain.RecordStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func recordRows(t *testing.T, records ...*recordsDomain.EncryptedRecord) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "kind", "encrypted_data", "blind_indexes",
		"encryption_key_id", "encryption_version", "status", "created_at", "updated_at",
	})
	for _, r := range records {
		encryptedData, err := json.Marshal(r.EncryptedData)
		require.NoError(t, err)
		blindIndexes, err := json.Marshal(r.BlindIndexes)
		require.NoError(t, err)
		rows.AddRow(
			r.ID, r.OrganizationID, r.Kind, encryptedData, blindIndexes,
			r.EncryptionKeyID, r.EncryptionVersion, r.Status, r.CreatedAt, r.UpdatedAt,
		)
	}
	return rows
}

func TestPostgreSQLRecordRepository_Create(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	record := testRecord()

	mock.ExpectExec(`INSERT INTO encrypted_records`).
		WithArgs(
			record.ID, record.OrganizationID, record.Kind,
			sqlmock.AnyArg(), sqlmock.AnyArg(),
			record.EncryptionKeyID, record.EncryptionVersion, record.Status,
			record.CreatedAt, record.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), record)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_Get(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	record := testRecord()

	mock.ExpectQuery(`SELECT (.+) FROM encrypted_records WHERE id =`).
		WithArgs(record.ID).
		WillReturnRows(recordRows(t, record))

	got, err := repo.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.EncryptedData, got.EncryptedData)
	assert.Equal(t, record.BlindIndexes, got.BlindIndexes)
	assert.Equal(t, record.EncryptionKeyID, got.EncryptionKeyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_Get_NotFound(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	recordID := uuid.Must(uuid.NewV7())

	mock.ExpectQuery(`SELECT (.+) FROM encrypted_records WHERE id =`).
		WithArgs(recordID).
		WillReturnRows(recordRows(t))

	got, err := repo.Get(context.Background(), recordID)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, recordsDomain.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_ListByEncryptionKeyID(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	first := testRecord()
	second := testRecord()

	mock.ExpectQuery(`SELECT (.+) FROM encrypted_records WHERE encryption_key_id =`).
		WithArgs(first.EncryptionKeyID).
		WillReturnRows(recordRows(t, first, second))

	records, err := repo.ListByEncryptionKeyID(context.Background(), first.EncryptionKeyID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, second.ID, records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_UpdateEncryption(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	record := testRecord()
	record.EncryptionVersion = 2

	mock.ExpectExec(`UPDATE encrypted_records SET`).
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(),
			record.EncryptionKeyID, record.EncryptionVersion, record.UpdatedAt,
			record.ID, 1,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateEncryption(context.Background(), record, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_UpdateEncryption_VersionConflict(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	record := testRecord()
	record.EncryptionVersion = 2

	mock.ExpectExec(`UPDATE encrypted_records SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateEncryption(context.Background(), record, 1)
	assert.ErrorIs(t, err, recordsDomain.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_SearchByBlindIndex(t *testing.T) {
	repo, mock := newRecordMockDB(t)
	record := testRecord()

	mock.ExpectQuery(`SELECT (.+) FROM encrypted_records WHERE organization_id =`).
		WithArgs(
			record.OrganizationID, record.Kind, recordsDomain.RecordStatusActive,
			"identification_name", "deadbeef",
		).
		WillReturnRows(recordRows(t, record))

	records, err := repo.SearchByBlindIndex(
		context.Background(),
		record.OrganizationID,
		record.Kind,
		"identification_name",
		"deadbeef",
	)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRecordRepository_SearchByBlindIndex_NoMatches(t *testing.T) {
	repo, mock := newRecordMockDB(t)

	mock.ExpectQuery(`SELECT (.+) FROM encrypted_records WHERE organization_id =`).
		WillReturnRows(recordRows(t))

	records, err := repo.SearchByBlindIndex(
		context.Background(), 42, fieldcrypt.RecordCaseHistory, "identification_name", "cafe",
	)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
