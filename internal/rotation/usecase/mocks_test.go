package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
)

// mockTxManager is a mock implementation of database.TxManager
type mockTxManager struct {
	mock.Mock
}

func (m *mockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	// Execute the function to test the logic inside
	return fn(ctx)
}

// mockKeyRepository is a mock implementation of the key repository for testing.
type mockKeyRepository struct {
	mock.Mock
}

func (m *mockKeyRepository) Create(ctx context.Context, key *keysDomain.EncryptionKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockKeyRepository) Get(ctx context.Context, keyID string) (*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyRepository) GetActiveDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
) (*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, organizationID, dataType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyRepository) GetActiveOrganizationKey(
	ctx context.Context,
	organizationID int64,
) (*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyRepository) ListByOrganization(
	ctx context.Context,
	organizationID int64,
) ([]*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyRepository) ListActive(
	ctx context.Context,
	keyType keysDomain.KeyType,
) ([]*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, keyType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyRepository) ListUsableDataKeys(
	ctx context.Context,
	organizationID int64,
) ([]*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyRepository) Deprecate(ctx context.Context, keyID string, rotatedAt time.Time) error {
	args := m.Called(ctx, keyID, rotatedAt)
	return args.Error(0)
}

func (m *mockKeyRepository) Retire(ctx context.Context, keyID string, retiredAt time.Time) error {
	args := m.Called(ctx, keyID, retiredAt)
	return args.Error(0)
}

func (m *mockKeyRepository) UpdateWrappedKey(ctx context.Context, keyID string, wrappedKey string) error {
	args := m.Called(ctx, keyID, wrappedKey)
	return args.Error(0)
}

// mockRecordRepository is a mock implementation of the record repository for testing.
type mockRecordRepository struct {
	mock.Mock
}

func (m *mockRecordRepository) Create(ctx context.Context, record *recordsDomain.EncryptedRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRecordRepository) Get(
	ctx context.Context,
	recordID uuid.UUID,
) (*recordsDomain.EncryptedRecord, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recordsDomain.EncryptedRecord), args.Error(1)
}

func (m *mockRecordRepository) ListByEncryptionKeyID(
	ctx context.Context,
	keyID string,
) ([]*recordsDomain.EncryptedRecord, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*recordsDomain.EncryptedRecord), args.Error(1)
}

func (m *mockRecordRepository) UpdateEncryption(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
	expectedVersion int,
) error {
	args := m.Called(ctx, record, expectedVersion)
	return args.Error(0)
}

func (m *mockRecordRepository) SearchByBlindIndex(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	field, digest string,
) ([]*recordsDomain.EncryptedRecord, error) {
	args := m.Called(ctx, organizationID, kind, field, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*recordsDomain.EncryptedRecord), args.Error(1)
}

// mockKeyHierarchy is a mock implementation of the key hierarchy for testing.
type mockKeyHierarchy struct {
	mock.Mock
}

func (m *mockKeyHierarchy) CreateOrganizationKey(
	ctx context.Context,
	organizationID int64,
	alg keysDomain.Algorithm,
) (*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, organizationID, alg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyHierarchy) CreateDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
	alg keysDomain.Algorithm,
) (*keysDomain.EncryptionKey, error) {
	args := m.Called(ctx, organizationID, dataType, alg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyHierarchy) ResolveDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
) (*keysUsecase.ResolvedKey, error) {
	args := m.Called(ctx, organizationID, dataType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysUsecase.ResolvedKey), args.Error(1)
}

func (m *mockKeyHierarchy) ResolveKey(ctx context.Context, keyID string) (*keysUsecase.ResolvedKey, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keysUsecase.ResolvedKey), args.Error(1)
}

func (m *mockKeyHierarchy) Invalidate(keyID string) {
	m.Called(keyID)
}

func (m *mockKeyHierarchy) Start(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockKeyHierarchy) Close() {
	m.Called()
}

// captureAuditWriter records audit events in memory for assertions.
type captureAuditWriter struct {
	keyManagement []auditUsecase.KeyManagementEvent
}

func (c *captureAuditWriter) LogEncryption(_ context.Context, _ auditUsecase.EncryptionEvent) {}

func (c *captureAuditWriter) LogDataAccess(_ context.Context, _ auditUsecase.DataAccessEvent) {}

func (c *captureAuditWriter) LogKeyManagement(_ context.Context, event auditUsecase.KeyManagementEvent) {
	c.keyManagement = append(c.keyManagement, event)
}

func (c *captureAuditWriter) LogAuthentication(_ context.Context, _ auditUsecase.AuthenticationEvent) {
}

func (c *captureAuditWriter) LogAuthorizationFailure(_ context.Context, _ auditUsecase.AuthorizationFailureEvent) {
}

func (c *captureAuditWriter) Flush(_ context.Context) error { return nil }

func (c *captureAuditWriter) Start(_ context.Context) {}

func (c *captureAuditWriter) Close() error { return nil }
