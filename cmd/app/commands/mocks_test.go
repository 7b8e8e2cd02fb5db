package commands

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
	rotationUsecase "github.com/clinicbase/phivault/internal/rotation/usecase"
)

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

type mockOrchestrator struct {
	mock.Mock
}

func (m *mockOrchestrator) CheckRotationStatus(ctx context.Context, keyID string) (*rotationUsecase.Status, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rotationUsecase.Status), args.Error(1)
}

func (m *mockOrchestrator) ListKeysNeedingRotation(
	ctx context.Context,
	organizationID int64,
) ([]*rotationUsecase.Status, error) {
	args := m.Called(ctx, organizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*rotationUsecase.Status), args.Error(1)
}

func (m *mockOrchestrator) RotateDataKey(
	ctx context.Context,
	oldKeyID string,
	actor auditDomain.Actor,
) (*rotationUsecase.Result, error) {
	args := m.Called(ctx, oldKeyID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rotationUsecase.Result), args.Error(1)
}

func (m *mockOrchestrator) RotateOrganizationKey(
	ctx context.Context,
	oldKeyID string,
	actor auditDomain.Actor,
) (*rotationUsecase.Result, error) {
	args := m.Called(ctx, oldKeyID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rotationUsecase.Result), args.Error(1)
}

func (m *mockOrchestrator) RetireDeprecatedKeys(ctx context.Context, organizationID int64) (int, error) {
	args := m.Called(ctx, organizationID)
	return args.Int(0), args.Error(1)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) GenerateComplianceReport(
	ctx context.Context,
	organizationID int64,
	start, end time.Time,
) (*auditUsecase.Report, error) {
	args := m.Called(ctx, organizationID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditUsecase.Report), args.Error(1)
}

func (m *mockReporter) CleanupExpiredLogs(
	ctx context.Context,
	organizationID int64,
	before time.Time,
) (int64, error) {
	args := m.Called(ctx, organizationID, before)
	return args.Get(0).(int64), args.Error(1)
}

type mockKMSService struct {
	mock.Mock
}

func (m *mockKMSService) OpenKeeper(ctx context.Context, keyURI string) (keysDomain.KMSKeeper, error) {
	args := m.Called(ctx, keyURI)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(keysDomain.KMSKeeper), args.Error(1)
}

type mockKMSKeeper struct {
	mock.Mock
}

func (m *mockKMSKeeper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	args := m.Called(ctx, plaintext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKMSKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKMSKeeper) Close() error {
	return m.Called().Error(0)
}
