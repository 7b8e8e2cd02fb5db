package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	xrate "golang.org/x/time/rate"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	"github.com/clinicbase/phivault/internal/blindindex"
	apperrors "github.com/clinicbase/phivault/internal/errors"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
	"github.com/clinicbase/phivault/internal/metrics"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
)

type orchestratorFixture struct {
	orchestrator Orchestrator
	txManager    *mockTxManager
	keyRepo      *mockKeyRepository
	recordRepo   *mockRecordRepository
	keys         *mockKeyHierarchy
	wrapper      cryptoService.KeyWrapper
	engine       fieldcrypt.Engine
	indexer      blindindex.Indexer
	keyring      *keysDomain.MasterKeyring
	audit        *captureAuditWriter
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	master := make([]byte, keysDomain.KeySize)
	_, err := io.ReadFull(rand.Reader, master)
	require.NoError(t, err)
	t.Setenv("MASTER_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(master))

	keyring, err := keysDomain.LoadMasterKeyringFromEnv()
	require.NoError(t, err)
	t.Cleanup(keyring.Close)

	txManager := &mockTxManager{}
	keyRepo := &mockKeyRepository{}
	recordRepo := &mockRecordRepository{}
	keys := &mockKeyHierarchy{}
	audit := &captureAuditWriter{}
	wrapper := cryptoService.NewKeyWrapper(cryptoService.NewAEADManager())
	engine := fieldcrypt.NewEngine(wrapper)
	indexer := blindindex.NewIndexer()

	config := Config{
		DataKeyRotationDays:         90,
		OrganizationKeyRotationDays: 365,
		GraceDays:                   7,
		RecordsPerSecond:            xrate.Inf,
	}
	orchestrator := NewOrchestrator(
		config, txManager, keyRepo, recordRepo, keys,
		wrapper, engine, indexer, keyring, audit,
		metrics.NewNoOpBusinessMetrics(), slog.New(slog.DiscardHandler),
	)

	return &orchestratorFixture{
		orchestrator: orchestrator,
		txManager:    txManager,
		keyRepo:      keyRepo,
		recordRepo:   recordRepo,
		keys:         keys,
		wrapper:      wrapper,
		engine:       engine,
		indexer:      indexer,
		keyring:      keyring,
		audit:        audit,
	}
}

func randomMaterial(t *testing.T) []byte {
	t.Helper()
	material := make([]byte, keysDomain.KeySize)
	_, err := io.ReadFull(rand.Reader, material)
	require.NoError(t, err)
	return material
}

func activeDataKey(createdAt time.Time) *keysDomain.EncryptionKey {
	orgID := int64(42)
	dataType := "case_history"
	return &keysDomain.EncryptionKey{
		KeyID:          "dek_42_case_history_1700000000000",
		KeyType:        keysDomain.KeyTypeData,
		Algorithm:      keysDomain.AESGCM,
		WrappedKey:     "aa:bb:cc:dd",
		OrganizationID: &orgID,
		DataType:       &dataType,
		Version:        1,
		Status:         keysDomain.KeyStatusActive,
		CreatedAt:      createdAt,
	}
}

func activeOrgKey(createdAt time.Time) *keysDomain.EncryptionKey {
	orgID := int64(42)
	return &keysDomain.EncryptionKey{
		KeyID:          "ok_42_1700000000000",
		KeyType:        keysDomain.KeyTypeOrganization,
		Algorithm:      keysDomain.AESGCM,
		WrappedKey:     "aa:bb:cc:dd",
		OrganizationID: &orgID,
		Version:        1,
		Status:         keysDomain.KeyStatusActive,
		CreatedAt:      createdAt,
	}
}

func rotationActor() auditDomain.Actor {
	userID := int64(1)
	return auditDomain.Actor{UserID: &userID, UserRole: "admin", OrganizationID: 42}
}

// sealTestRecord encrypts a case history under the given material the way the
// protector would, so rotation has realistic input.
func sealTestRecord(
	t *testing.T,
	f *orchestratorFixture,
	material []byte,
	keyID string,
	name string,
) *recordsDomain.EncryptedRecord {
	t.Helper()
	schema, err := fieldcrypt.SchemaFor(fieldcrypt.RecordCaseHistory)
	require.NoError(t, err)

	values := map[string]string{
		"identification_name": name,
		"chief_complaints":    "sleep disturbance",
	}
	encrypted, err := f.engine.EncryptFields(values, schema, material, keysDomain.AESGCM)
	require.NoError(t, err)

	digest, err := f.indexer.Compute(material, name)
	require.NoError(t, err)

	now := time.Now().UTC()
	return &recordsDomain.EncryptedRecord{
		ID:                uuid.Must(uuid.NewV7()),
		OrganizationID:    42,
		Kind:              fieldcrypt.RecordCaseHistory,
		EncryptedData:     encrypted,
		BlindIndexes:      map[string]string{"identification_name": digest},
		EncryptionKeyID:   keyID,
		EncryptionVersion: 1,
		Status:            recordsDomain.RecordStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCheckRotationStatus(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		key      *keysDomain.EncryptionKey
		expected Status
	}{
		{
			name: "DataKeyDue",
			key:  activeDataKey(time.Now().UTC().AddDate(0, 0, -95)),
			expected: Status{
				AgeDays:            95,
				RotationPeriodDays: 90,
				NeedsRotation:      true,
				DaysUntilRotation:  0,
				Overdue:            false,
			},
		},
		{
			name: "DataKeyFresh",
			key:  activeDataKey(time.Now().UTC().AddDate(0, 0, -10)),
			expected: Status{
				AgeDays:            10,
				RotationPeriodDays: 90,
				NeedsRotation:      false,
				DaysUntilRotation:  80,
				Overdue:            false,
			},
		},
		{
			name: "DataKeyOverdue",
			key:  activeDataKey(time.Now().UTC().AddDate(0, 0, -120)),
			expected: Status{
				AgeDays:            120,
				RotationPeriodDays: 90,
				NeedsRotation:      true,
				DaysUntilRotation:  0,
				Overdue:            true,
			},
		},
		{
			name: "OrganizationKeyUsesLongerPeriod",
			key:  activeOrgKey(time.Now().UTC().AddDate(0, 0, -120)),
			expected: Status{
				AgeDays:            120,
				RotationPeriodDays: 365,
				NeedsRotation:      false,
				DaysUntilRotation:  245,
				Overdue:            false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.keyRepo.On("Get", ctx, tt.key.KeyID).Return(tt.key, nil).Once()

			status, err := f.orchestrator.CheckRotationStatus(ctx, tt.key.KeyID)

			require.NoError(t, err)
			assert.Equal(t, tt.expected.AgeDays, status.AgeDays)
			assert.Equal(t, tt.expected.RotationPeriodDays, status.RotationPeriodDays)
			assert.Equal(t, tt.expected.NeedsRotation, status.NeedsRotation)
			assert.Equal(t, tt.expected.DaysUntilRotation, status.DaysUntilRotation)
			assert.Equal(t, tt.expected.Overdue, status.Overdue)
		})
	}
}

func TestListKeysNeedingRotation(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	dueKey := activeDataKey(time.Now().UTC().AddDate(0, 0, -100))
	freshKey := activeOrgKey(time.Now().UTC().AddDate(0, 0, -30))
	deprecated := activeDataKey(time.Now().UTC().AddDate(0, 0, -200))
	deprecated.KeyID = "dek_42_case_history_1600000000000"
	deprecated.Status = keysDomain.KeyStatusDeprecated

	f.keyRepo.On("ListByOrganization", ctx, int64(42)).
		Return([]*keysDomain.EncryptionKey{dueKey, freshKey, deprecated}, nil)

	due, err := f.orchestrator.ListKeysNeedingRotation(ctx, 42)

	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueKey.KeyID, due[0].KeyID)
	assert.True(t, due[0].NeedsRotation)
}

func TestRotateDataKey(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	oldMaterial := randomMaterial(t)
	orgMaterial := randomMaterial(t)
	oldKey := activeDataKey(time.Now().UTC().AddDate(0, 0, -100))
	orgKey := activeOrgKey(time.Now().UTC().AddDate(0, 0, -100))

	good1 := sealTestRecord(t, f, oldMaterial, oldKey.KeyID, "Jane Smith")
	good2 := sealTestRecord(t, f, oldMaterial, oldKey.KeyID, "John Doe")
	corrupt := sealTestRecord(t, f, oldMaterial, oldKey.KeyID, "Mary Major")
	corrupt.EncryptedData["chief_complaints"] = "zz:zz:zz:zz"

	f.keyRepo.On("Get", ctx, oldKey.KeyID).Return(oldKey, nil)
	f.keys.On("ResolveKey", ctx, oldKey.KeyID).
		Return(&keysUsecase.ResolvedKey{Key: oldKey, Material: oldMaterial}, nil)
	f.keyRepo.On("GetActiveOrganizationKey", ctx, int64(42)).Return(orgKey, nil)
	f.keys.On("ResolveKey", ctx, orgKey.KeyID).
		Return(&keysUsecase.ResolvedKey{Key: orgKey, Material: orgMaterial}, nil)

	var newKey *keysDomain.EncryptionKey
	f.txManager.On("WithTx", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	f.keyRepo.On("Deprecate", ctx, oldKey.KeyID, mock.AnythingOfType("time.Time")).Return(nil)
	f.keyRepo.On("Create", ctx, mock.AnythingOfType("*domain.EncryptionKey")).
		Run(func(args mock.Arguments) {
			newKey = args.Get(1).(*keysDomain.EncryptionKey)
		}).Return(nil)
	f.keys.On("Invalidate", oldKey.KeyID).Return()

	f.recordRepo.On("ListByEncryptionKeyID", ctx, oldKey.KeyID).
		Return([]*recordsDomain.EncryptedRecord{good1, good2, corrupt}, nil)

	var rewritten []*recordsDomain.EncryptedRecord
	f.recordRepo.On("UpdateEncryption", ctx, mock.AnythingOfType("*domain.EncryptedRecord"), 1).
		Run(func(args mock.Arguments) {
			rewritten = append(rewritten, args.Get(1).(*recordsDomain.EncryptedRecord))
		}).Return(nil)

	result, err := f.orchestrator.RotateDataKey(ctx, oldKey.KeyID, rotationActor())

	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], corrupt.ID.String())

	// The replacement key carries the next version in the same scope.
	require.NotNil(t, newKey)
	assert.Equal(t, oldKey.Version+1, newKey.Version)
	assert.Equal(t, keysDomain.KeyStatusActive, newKey.Status)
	assert.Equal(t, *oldKey.DataType, *newKey.DataType)
	assert.Equal(t, result.NewKeyID, newKey.KeyID)

	// Its material unwraps under the organization key.
	newMaterial, err := f.wrapper.Unwrap(newKey.WrappedKey, orgMaterial, orgKey.Algorithm)
	require.NoError(t, err)

	// Rewritten records decrypt under the new key, with recomputed indexes and
	// a bumped version.
	schema, err := fieldcrypt.SchemaFor(fieldcrypt.RecordCaseHistory)
	require.NoError(t, err)
	require.Len(t, rewritten, 2)
	for _, record := range rewritten {
		assert.Equal(t, newKey.KeyID, record.EncryptionKeyID)
		assert.Equal(t, 2, record.EncryptionVersion)

		values, fieldErrs := f.engine.DecryptFields(record.EncryptedData, schema, newMaterial, newKey.Algorithm)
		assert.Nil(t, fieldErrs)

		digest, err := f.indexer.Compute(newMaterial, values["identification_name"])
		require.NoError(t, err)
		assert.Equal(t, digest, record.BlindIndexes["identification_name"])
	}

	require.Len(t, f.audit.keyManagement, 1)
	assert.Equal(t, "rotate_data_key", f.audit.keyManagement[0].Action)
	assert.Equal(t, newKey.KeyID, f.audit.keyManagement[0].KeyID)
	require.NotNil(t, f.audit.keyManagement[0].Counts)
	assert.Equal(t, 3, f.audit.keyManagement[0].Counts.Processed)
	assert.Equal(t, 2, f.audit.keyManagement[0].Counts.Succeeded)
	assert.Equal(t, 1, f.audit.keyManagement[0].Counts.Failed)
	f.keyRepo.AssertExpectations(t)
	f.recordRepo.AssertExpectations(t)
}

func TestRotateDataKey_VersionConflictRetries(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	oldMaterial := randomMaterial(t)
	orgMaterial := randomMaterial(t)
	oldKey := activeDataKey(time.Now().UTC().AddDate(0, 0, -100))
	orgKey := activeOrgKey(time.Now().UTC().AddDate(0, 0, -100))
	record := sealTestRecord(t, f, oldMaterial, oldKey.KeyID, "Jane Smith")

	f.keyRepo.On("Get", ctx, oldKey.KeyID).Return(oldKey, nil)
	f.keys.On("ResolveKey", ctx, oldKey.KeyID).
		Return(&keysUsecase.ResolvedKey{Key: oldKey, Material: oldMaterial}, nil)
	f.keyRepo.On("GetActiveOrganizationKey", ctx, int64(42)).Return(orgKey, nil)
	f.keys.On("ResolveKey", ctx, orgKey.KeyID).
		Return(&keysUsecase.ResolvedKey{Key: orgKey, Material: orgMaterial}, nil)
	f.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	f.keyRepo.On("Deprecate", ctx, oldKey.KeyID, mock.AnythingOfType("time.Time")).Return(nil)
	f.keyRepo.On("Create", ctx, mock.Anything).Return(nil)
	f.keys.On("Invalidate", oldKey.KeyID).Return()
	f.recordRepo.On("ListByEncryptionKeyID", ctx, oldKey.KeyID).
		Return([]*recordsDomain.EncryptedRecord{record}, nil)

	// First conditional write loses the race; the retry from a fresh read wins.
	f.recordRepo.On("UpdateEncryption", ctx, mock.Anything, 1).
		Return(recordsDomain.ErrVersionConflict).Once()
	f.recordRepo.On("Get", ctx, record.ID).Return(record, nil).Once()
	f.recordRepo.On("UpdateEncryption", ctx, mock.Anything, 1).Return(nil).Once()

	result, err := f.orchestrator.RotateDataKey(ctx, oldKey.KeyID, rotationActor())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Zero(t, result.ErrorCount)
	assert.True(t, result.Success)
	f.recordRepo.AssertExpectations(t)
}

func TestRotateDataKey_NotActiveDataKey(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	orgKey := activeOrgKey(time.Now().UTC())
	f.keyRepo.On("Get", ctx, orgKey.KeyID).Return(orgKey, nil)

	result, err := f.orchestrator.RotateDataKey(ctx, orgKey.KeyID, rotationActor())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	require.Len(t, f.audit.keyManagement, 1)
	assert.NotNil(t, f.audit.keyManagement[0].Err)
}

func TestRotateOrganizationKey(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	oldOrgMaterial := randomMaterial(t)
	oldOrgKey := activeOrgKey(time.Now().UTC().AddDate(0, 0, -400))

	// Two stored data keys wrapped under the old organization key.
	dk1Material := randomMaterial(t)
	dk2Material := randomMaterial(t)
	wrapped1, err := f.wrapper.Wrap(dk1Material, oldOrgMaterial, oldOrgKey.Algorithm)
	require.NoError(t, err)
	wrapped2, err := f.wrapper.Wrap(dk2Material, oldOrgMaterial, oldOrgKey.Algorithm)
	require.NoError(t, err)

	dk1 := activeDataKey(time.Now().UTC().AddDate(0, 0, -30))
	dk1.WrappedKey = wrapped1
	dk2 := activeDataKey(time.Now().UTC().AddDate(0, 0, -30))
	dk2.KeyID = "dek_42_mental_status_1700000000000"
	dk2.WrappedKey = wrapped2

	f.keyRepo.On("Get", ctx, oldOrgKey.KeyID).Return(oldOrgKey, nil)
	f.keys.On("ResolveKey", ctx, oldOrgKey.KeyID).
		Return(&keysUsecase.ResolvedKey{Key: oldOrgKey, Material: oldOrgMaterial}, nil)

	var newKey *keysDomain.EncryptionKey
	f.txManager.On("WithTx", ctx, mock.Anything).Return(nil)
	f.keyRepo.On("Deprecate", ctx, oldOrgKey.KeyID, mock.AnythingOfType("time.Time")).Return(nil)
	f.keyRepo.On("Create", ctx, mock.AnythingOfType("*domain.EncryptionKey")).
		Run(func(args mock.Arguments) {
			newKey = args.Get(1).(*keysDomain.EncryptionKey)
		}).Return(nil)
	f.keys.On("Invalidate", mock.AnythingOfType("string")).Return()

	f.keyRepo.On("ListUsableDataKeys", ctx, int64(42)).
		Return([]*keysDomain.EncryptionKey{dk1, dk2}, nil)

	rewrapped := make(map[string]string)
	f.keyRepo.On("UpdateWrappedKey", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			rewrapped[args.Get(1).(string)] = args.Get(2).(string)
		}).Return(nil)

	result, err := f.orchestrator.RotateOrganizationKey(ctx, oldOrgKey.KeyID, rotationActor())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.SuccessCount)
	assert.True(t, result.Success)

	// The new organization key unwraps under the master key and carries the
	// next version.
	require.NotNil(t, newKey)
	assert.Equal(t, oldOrgKey.Version+1, newKey.Version)
	newOrgMaterial, err := f.wrapper.Unwrap(newKey.WrappedKey, f.keyring.Master().Key, newKey.Algorithm)
	require.NoError(t, err)

	// Data key material survives the re-wrap unchanged.
	got1, err := f.wrapper.Unwrap(rewrapped[dk1.KeyID], newOrgMaterial, newKey.Algorithm)
	require.NoError(t, err)
	assert.Equal(t, dk1Material, got1)
	got2, err := f.wrapper.Unwrap(rewrapped[dk2.KeyID], newOrgMaterial, newKey.Algorithm)
	require.NoError(t, err)
	assert.Equal(t, dk2Material, got2)

	require.Len(t, f.audit.keyManagement, 1)
	assert.Equal(t, "rotate_organization_key", f.audit.keyManagement[0].Action)
	require.NotNil(t, f.audit.keyManagement[0].Counts)
	assert.Equal(t, 2, f.audit.keyManagement[0].Counts.Processed)
	assert.Equal(t, 2, f.audit.keyManagement[0].Counts.Succeeded)
	assert.Equal(t, 0, f.audit.keyManagement[0].Counts.Failed)
	f.keyRepo.AssertExpectations(t)
}

func TestRetireDeprecatedKeys(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	pastGrace := now.AddDate(0, 0, -10)
	withinGrace := now.AddDate(0, 0, -2)

	expired := activeDataKey(now.AddDate(0, 0, -120))
	expired.Status = keysDomain.KeyStatusDeprecated
	expired.RotatedAt = &pastGrace

	graceful := activeDataKey(now.AddDate(0, 0, -100))
	graceful.KeyID = "dek_42_case_history_1700000060000"
	graceful.Status = keysDomain.KeyStatusDeprecated
	graceful.RotatedAt = &withinGrace

	active := activeDataKey(now.AddDate(0, 0, -10))
	active.KeyID = "dek_42_case_history_1700000120000"

	f.keyRepo.On("ListByOrganization", ctx, int64(42)).
		Return([]*keysDomain.EncryptionKey{expired, graceful, active}, nil)
	f.keyRepo.On("Retire", ctx, expired.KeyID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	f.keys.On("Invalidate", expired.KeyID).Return().Once()

	retired, err := f.orchestrator.RetireDeprecatedKeys(ctx, 42)

	require.NoError(t, err)
	assert.Equal(t, 1, retired)
	f.keyRepo.AssertExpectations(t)
	f.keys.AssertExpectations(t)
}
