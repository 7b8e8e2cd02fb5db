package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	"github.com/clinicbase/phivault/internal/blindindex"
	"github.com/clinicbase/phivault/internal/database"
	apperrors "github.com/clinicbase/phivault/internal/errors"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
	"github.com/clinicbase/phivault/internal/metrics"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
	recordsUsecase "github.com/clinicbase/phivault/internal/records/usecase"
)

// maxErrorDetails caps how many per-record failure messages a Result carries.
const maxErrorDetails = 10

// Config holds the rotation policy.
type Config struct {
	// DataKeyRotationDays is the rotation period for data keys.
	DataKeyRotationDays int

	// OrganizationKeyRotationDays is the rotation period for organization keys.
	OrganizationKeyRotationDays int

	// GraceDays is how long a deprecated key keeps decrypting before retirement.
	GraceDays int

	// RecordsPerSecond limits the re-encryption rate during data key rotation.
	RecordsPerSecond rate.Limit
}

type orchestrator struct {
	config     Config
	txManager  database.TxManager
	keyRepo    keysUsecase.KeyRepository
	recordRepo recordsUsecase.RecordRepository
	keys       keysUsecase.KeyHierarchy
	wrapper    cryptoService.KeyWrapper
	engine     fieldcrypt.Engine
	indexer    blindindex.Indexer
	keyring    *keysDomain.MasterKeyring
	audit      auditUsecase.Writer
	business   metrics.BusinessMetrics
	logger     *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewOrchestrator creates a new rotation orchestrator.
func NewOrchestrator(
	config Config,
	txManager database.TxManager,
	keyRepo keysUsecase.KeyRepository,
	recordRepo recordsUsecase.RecordRepository,
	keys keysUsecase.KeyHierarchy,
	wrapper cryptoService.KeyWrapper,
	engine fieldcrypt.Engine,
	indexer blindindex.Indexer,
	keyring *keysDomain.MasterKeyring,
	audit auditUsecase.Writer,
	business metrics.BusinessMetrics,
	logger *slog.Logger,
) Orchestrator {
	return &orchestrator{
		config:     config,
		txManager:  txManager,
		keyRepo:    keyRepo,
		recordRepo: recordRepo,
		keys:       keys,
		wrapper:    wrapper,
		engine:     engine,
		indexer:    indexer,
		keyring:    keyring,
		audit:      audit,
		business:   business,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckRotationStatus evaluates a key against the rotation policy.
func (o *orchestrator) CheckRotationStatus(ctx context.Context, keyID string) (*Status, error) {
	key, err := o.keyRepo.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return o.statusFor(key), nil
}

func (o *orchestrator) statusFor(key *keysDomain.EncryptionKey) *Status {
	period := o.config.DataKeyRotationDays
	if key.KeyType == keysDomain.KeyTypeOrganization {
		period = o.config.OrganizationKeyRotationDays
	}

	ageDays := int(o.now().UTC().Sub(key.CreatedAt).Hours() / 24)
	remaining := period - ageDays
	if remaining < 0 {
		remaining = 0
	}

	return &Status{
		KeyID:              key.KeyID,
		KeyType:            key.KeyType,
		AgeDays:            ageDays,
		RotationPeriodDays: period,
		NeedsRotation:      ageDays >= period,
		DaysUntilRotation:  remaining,
		Overdue:            ageDays > period+o.config.GraceDays,
	}
}

// ListKeysNeedingRotation returns the status of every active key of an
// organization that is due for rotation.
func (o *orchestrator) ListKeysNeedingRotation(
	ctx context.Context,
	organizationID int64,
) ([]*Status, error) {
	keys, err := o.keyRepo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var due []*Status
	for _, key := range keys {
		if key.Status != keysDomain.KeyStatusActive {
			continue
		}
		if status := o.statusFor(key); status.NeedsRotation {
			due = append(due, status)
		}
	}
	return due, nil
}

// RotateDataKey replaces an active data key and re-encrypts its records.
func (o *orchestrator) RotateDataKey(
	ctx context.Context,
	oldKeyID string,
	actor auditDomain.Actor,
) (*Result, error) {
	start := o.now()
	result, err := o.rotateDataKey(ctx, oldKeyID)
	o.observe(ctx, "rotate_data_key", start, err)

	event := auditUsecase.KeyManagementEvent{
		Action: "rotate_data_key",
		Actor:  actor,
		KeyID:  oldKeyID,
		Err:    err,
	}
	if result != nil {
		if result.NewKeyID != "" {
			event.KeyID = result.NewKeyID
		}
		event.Counts = &auditUsecase.ActionCounts{
			Processed: result.Processed,
			Succeeded: result.SuccessCount,
			Failed:    result.ErrorCount,
		}
	}
	o.audit.LogKeyManagement(ctx, event)

	return result, err
}

func (o *orchestrator) rotateDataKey(ctx context.Context, oldKeyID string) (*Result, error) {
	oldKey, err := o.keyRepo.Get(ctx, oldKeyID)
	if err != nil {
		return nil, err
	}
	if oldKey.KeyType != keysDomain.KeyTypeData || oldKey.Status != keysDomain.KeyStatusActive {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "key %s is not an active data key", oldKeyID)
	}

	// Resolved material is this caller's own copy, so it survives the
	// Invalidate below for the whole record loop.
	oldResolved, err := o.keys.ResolveKey(ctx, oldKeyID)
	if err != nil {
		return nil, err
	}
	oldMaterial := oldResolved.Material
	defer keysDomain.Zero(oldMaterial)

	orgKey, err := o.keyRepo.GetActiveOrganizationKey(ctx, *oldKey.OrganizationID)
	if err != nil {
		return nil, err
	}
	orgResolved, err := o.keys.ResolveKey(ctx, orgKey.KeyID)
	if err != nil {
		return nil, err
	}

	newMaterial, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(newMaterial)

	wrapped, err := o.wrapper.Wrap(newMaterial, orgResolved.Material, orgKey.Algorithm)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	newKey := &keysDomain.EncryptionKey{
		KeyID:          keysDomain.NewDataKeyID(*oldKey.OrganizationID, *oldKey.DataType, now),
		KeyType:        keysDomain.KeyTypeData,
		Algorithm:      oldKey.Algorithm,
		WrappedKey:     wrapped,
		OrganizationID: oldKey.OrganizationID,
		DataType:       oldKey.DataType,
		Version:        oldKey.Version + 1,
		Status:         keysDomain.KeyStatusActive,
		CreatedAt:      now,
	}

	// Deprecating the old key and activating its successor must be atomic, or
	// the scope could briefly have zero or two active keys.
	err = o.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := o.keyRepo.Deprecate(ctx, oldKeyID, now); err != nil {
			return err
		}
		return o.keyRepo.Create(ctx, newKey)
	})
	if err != nil {
		return nil, err
	}
	o.keys.Invalidate(oldKeyID)

	result := &Result{OldKeyID: oldKeyID, NewKeyID: newKey.KeyID}

	schema, err := fieldcrypt.SchemaFor(fieldcrypt.RecordKind(*oldKey.DataType))
	if err != nil {
		return result, err
	}

	records, err := o.recordRepo.ListByEncryptionKeyID(ctx, oldKeyID)
	if err != nil {
		return result, err
	}

	limiter := rate.NewLimiter(o.config.RecordsPerSecond, 1)
	for _, record := range records {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}

		result.Processed++
		if err := o.rewriteRecord(ctx, record, schema, oldMaterial, newMaterial, newKey); err != nil {
			result.ErrorCount++
			if len(result.Errors) < maxErrorDetails {
				result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", record.ID, err))
			}
			o.logger.Error("failed to re-encrypt record",
				slog.String("record_id", record.ID.String()),
				slog.Any("error", err),
			)
			continue
		}
		result.SuccessCount++
	}
	result.Success = result.ErrorCount == 0

	o.logger.Info("data key rotated",
		slog.String("old_key_id", oldKeyID),
		slog.String("new_key_id", newKey.KeyID),
		slog.Int("processed", result.Processed),
		slog.Int("errors", result.ErrorCount),
	)
	return result, nil
}

// rewriteRecord decrypts a record under the old key, re-encrypts it under the
// new key, recomputes its blind indexes and writes conditionally on the
// version it read. A lost race gets one retry from a fresh read.
func (o *orchestrator) rewriteRecord(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
	schema fieldcrypt.Schema,
	oldMaterial, newMaterial []byte,
	newKey *keysDomain.EncryptionKey,
) error {
	err := o.rewriteOnce(ctx, record, schema, oldMaterial, newMaterial, newKey)
	if !errors.Is(err, recordsDomain.ErrVersionConflict) {
		return err
	}

	fresh, err := o.recordRepo.Get(ctx, record.ID)
	if err != nil {
		return err
	}
	if fresh.EncryptionKeyID != record.EncryptionKeyID {
		// A concurrent writer already moved the record off the old key.
		return nil
	}
	return o.rewriteOnce(ctx, fresh, schema, oldMaterial, newMaterial, newKey)
}

func (o *orchestrator) rewriteOnce(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
	schema fieldcrypt.Schema,
	oldMaterial, newMaterial []byte,
	newKey *keysDomain.EncryptionKey,
) error {
	values, fieldErrs := o.engine.DecryptFields(
		record.EncryptedData, schema, oldMaterial, newKey.Algorithm,
	)
	if len(fieldErrs) > 0 {
		return fmt.Errorf("%d fields failed to decrypt", len(fieldErrs))
	}

	encrypted, err := o.engine.EncryptFields(values, schema, newMaterial, newKey.Algorithm)
	if err != nil {
		return err
	}

	indexes := make(map[string]string)
	for _, field := range schema.Searchable {
		value, ok := values[field]
		if !ok || value == "" {
			continue
		}
		digest, err := o.indexer.Compute(newMaterial, value)
		if err != nil {
			return err
		}
		indexes[field] = digest
	}

	updated := *record
	updated.EncryptedData = encrypted
	updated.BlindIndexes = indexes
	updated.EncryptionKeyID = newKey.KeyID
	updated.EncryptionVersion = record.EncryptionVersion + 1
	updated.UpdatedAt = o.now().UTC()

	return o.recordRepo.UpdateEncryption(ctx, &updated, record.EncryptionVersion)
}

// RotateOrganizationKey replaces an active organization key and re-wraps the
// organization's usable data keys under it.
func (o *orchestrator) RotateOrganizationKey(
	ctx context.Context,
	oldKeyID string,
	actor auditDomain.Actor,
) (*Result, error) {
	start := o.now()
	result, err := o.rotateOrganizationKey(ctx, oldKeyID)
	o.observe(ctx, "rotate_organization_key", start, err)

	event := auditUsecase.KeyManagementEvent{
		Action: "rotate_organization_key",
		Actor:  actor,
		KeyID:  oldKeyID,
		Err:    err,
	}
	if result != nil {
		if result.NewKeyID != "" {
			event.KeyID = result.NewKeyID
		}
		event.Counts = &auditUsecase.ActionCounts{
			Processed: result.Processed,
			Succeeded: result.SuccessCount,
			Failed:    result.ErrorCount,
		}
	}
	o.audit.LogKeyManagement(ctx, event)

	return result, err
}

func (o *orchestrator) rotateOrganizationKey(ctx context.Context, oldKeyID string) (*Result, error) {
	oldKey, err := o.keyRepo.Get(ctx, oldKeyID)
	if err != nil {
		return nil, err
	}
	if oldKey.KeyType != keysDomain.KeyTypeOrganization || oldKey.Status != keysDomain.KeyStatusActive {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "key %s is not an active organization key", oldKeyID)
	}

	// The old material must be captured before deprecation: stored data keys
	// are wrapped under it until this run re-wraps them.
	oldResolved, err := o.keys.ResolveKey(ctx, oldKeyID)
	if err != nil {
		return nil, err
	}
	oldMaterial := oldResolved.Material
	defer keysDomain.Zero(oldMaterial)

	newMaterial, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(newMaterial)

	wrapped, err := o.wrapper.Wrap(newMaterial, o.keyring.Master().Key, oldKey.Algorithm)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	newKey := &keysDomain.EncryptionKey{
		KeyID:          keysDomain.NewOrganizationKeyID(*oldKey.OrganizationID, now),
		KeyType:        keysDomain.KeyTypeOrganization,
		Algorithm:      oldKey.Algorithm,
		WrappedKey:     wrapped,
		OrganizationID: oldKey.OrganizationID,
		Version:        oldKey.Version + 1,
		Status:         keysDomain.KeyStatusActive,
		CreatedAt:      now,
	}

	err = o.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := o.keyRepo.Deprecate(ctx, oldKeyID, now); err != nil {
			return err
		}
		return o.keyRepo.Create(ctx, newKey)
	})
	if err != nil {
		return nil, err
	}
	o.keys.Invalidate(oldKeyID)

	result := &Result{OldKeyID: oldKeyID, NewKeyID: newKey.KeyID}

	dataKeys, err := o.keyRepo.ListUsableDataKeys(ctx, *oldKey.OrganizationID)
	if err != nil {
		return result, err
	}

	for _, dataKey := range dataKeys {
		result.Processed++

		material, err := o.wrapper.Unwrap(dataKey.WrappedKey, oldMaterial, oldKey.Algorithm)
		if err == nil {
			var rewrapped string
			rewrapped, err = o.wrapper.Wrap(material, newMaterial, newKey.Algorithm)
			keysDomain.Zero(material)
			if err == nil {
				err = o.keyRepo.UpdateWrappedKey(ctx, dataKey.KeyID, rewrapped)
			}
		}
		if err != nil {
			result.ErrorCount++
			if len(result.Errors) < maxErrorDetails {
				result.Errors = append(result.Errors, fmt.Sprintf("data key %s: %v", dataKey.KeyID, err))
			}
			o.logger.Error("failed to re-wrap data key",
				slog.String("key_id", dataKey.KeyID),
				slog.Any("error", err),
			)
			continue
		}

		o.keys.Invalidate(dataKey.KeyID)
		result.SuccessCount++
	}
	result.Success = result.ErrorCount == 0

	o.logger.Info("organization key rotated",
		slog.String("old_key_id", oldKeyID),
		slog.String("new_key_id", newKey.KeyID),
		slog.Int("data_keys", result.Processed),
		slog.Int("errors", result.ErrorCount),
	)
	return result, nil
}

// RetireDeprecatedKeys retires deprecated keys whose grace period has elapsed.
func (o *orchestrator) RetireDeprecatedKeys(ctx context.Context, organizationID int64) (int, error) {
	keys, err := o.keyRepo.ListByOrganization(ctx, organizationID)
	if err != nil {
		return 0, err
	}

	now := o.now().UTC()
	grace := time.Duration(o.config.GraceDays) * 24 * time.Hour

	retired := 0
	for _, key := range keys {
		if key.Status != keysDomain.KeyStatusDeprecated || key.RotatedAt == nil {
			continue
		}
		if now.Sub(*key.RotatedAt) < grace {
			continue
		}

		if err := o.keyRepo.Retire(ctx, key.KeyID, now); err != nil {
			return retired, err
		}
		o.keys.Invalidate(key.KeyID)
		retired++

		o.logger.Info("key retired",
			slog.String("key_id", key.KeyID),
			slog.Time("rotated_at", *key.RotatedAt),
		)
	}
	return retired, nil
}

func (o *orchestrator) observe(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.business.RecordOperation(ctx, "rotation", operation, status)
	o.business.RecordDuration(ctx, "rotation", operation, o.now().Sub(start), status)
}
