package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// mockKeyRepository is a mock implementation of KeyRepository for testing.
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
