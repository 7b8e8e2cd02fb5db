package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
)

// mockRecordRepository is a mock implementation of RecordRepository for testing.
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
	encryption    []auditUsecase.EncryptionEvent
	dataAccess    []auditUsecase.DataAccessEvent
	keyManagement []auditUsecase.KeyManagementEvent
}

func (c *captureAuditWriter) LogEncryption(_ context.Context, event auditUsecase.EncryptionEvent) {
	c.encryption = append(c.encryption, event)
}

func (c *captureAuditWriter) LogDataAccess(_ context.Context, event auditUsecase.DataAccessEvent) {
	c.dataAccess = append(c.dataAccess, event)
}

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
