package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/google/uuid"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	"github.com/clinicbase/phivault/internal/blindindex"
	apperrors "github.com/clinicbase/phivault/internal/errors"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
	"github.com/clinicbase/phivault/internal/metrics"
	recordsDomain "github.com/clinicbase/phivault/internal/records/domain"
	appValidation "github.com/clinicbase/phivault/internal/validation"
)

const metricsDomain = "records"

type protector struct {
	recordRepo RecordRepository
	keys       keysUsecase.KeyHierarchy
	engine     fieldcrypt.Engine
	indexer    blindindex.Indexer
	audit      auditUsecase.Writer
	business   metrics.BusinessMetrics
	logger     *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewProtector creates a new record protector.
func NewProtector(
	recordRepo RecordRepository,
	keys keysUsecase.KeyHierarchy,
	engine fieldcrypt.Engine,
	indexer blindindex.Indexer,
	audit auditUsecase.Writer,
	business metrics.BusinessMetrics,
	logger *slog.Logger,
) Protector {
	return &protector{
		recordRepo: recordRepo,
		keys:       keys,
		engine:     engine,
		indexer:    indexer,
		audit:      audit,
		business:   business,
		logger:     logger,
		now:        time.Now,
	}
}

// Seal encrypts the schema's sensitive fields under the organization's active
// data key and persists the record. Blind index failures never abort the seal;
// the index is omitted and logged.
func (p *protector) Seal(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	values map[string]string,
	actor auditDomain.Actor,
) (*recordsDomain.EncryptedRecord, error) {
	start := p.now()

	record, err := p.seal(ctx, organizationID, kind, values)
	p.observe(ctx, "record_seal", start, err)

	event := auditUsecase.EncryptionEvent{
		Operation: auditDomain.OperationEncrypt,
		DataType:  string(kind),
		Actor:     actor,
		Err:       err,
	}
	if record != nil {
		recordID := record.ID.String()
		event.RecordID = &recordID
		event.KeyID = record.EncryptionKeyID
		event.Fields = encryptedFieldNames(record)
	}
	p.audit.LogEncryption(ctx, event)

	return record, err
}

func (p *protector) seal(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	values map[string]string,
) (*recordsDomain.EncryptedRecord, error) {
	if err := validateSealInput(organizationID, values); err != nil {
		return nil, err
	}

	schema, err := fieldcrypt.SchemaFor(kind)
	if err != nil {
		return nil, err
	}

	resolved, err := p.keys.ResolveDataKey(ctx, organizationID, schema.DataType())
	if err != nil {
		return nil, err
	}

	encrypted, err := p.engine.EncryptFields(values, schema, resolved.Material, resolved.Key.Algorithm)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	record := &recordsDomain.EncryptedRecord{
		ID:                uuid.Must(uuid.NewV7()),
		OrganizationID:    organizationID,
		Kind:              kind,
		EncryptedData:     encrypted,
		BlindIndexes:      p.computeIndexes(schema, values, resolved.Material),
		EncryptionKeyID:   resolved.Key.KeyID,
		EncryptionVersion: 1,
		Status:            recordsDomain.RecordStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := p.recordRepo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// computeIndexes derives blind index digests for the searchable fields present
// in the value map.
func (p *protector) computeIndexes(
	schema fieldcrypt.Schema,
	values map[string]string,
	material []byte,
) map[string]string {
	indexes := make(map[string]string)
	for _, field := range schema.Searchable {
		value, ok := values[field]
		if !ok || value == "" {
			continue
		}
		digest, err := p.indexer.Compute(material, value)
		if err != nil {
			p.logger.Warn("failed to compute blind index",
				slog.String("field", field),
				slog.Any("error", err),
			)
			continue
		}
		indexes[field] = digest
	}
	return indexes
}

// Open decrypts a stored record, tolerating per-field failures.
func (p *protector) Open(
	ctx context.Context,
	recordID uuid.UUID,
	accessReason string,
	actor auditDomain.Actor,
) (map[string]string, fieldcrypt.FieldErrors, error) {
	start := p.now()

	record, err := p.recordRepo.Get(ctx, recordID)
	if err != nil {
		p.observe(ctx, "record_open", start, err)
		return nil, nil, err
	}

	values, fieldErrs, err := p.open(ctx, record)
	p.observe(ctx, "record_open", start, err)

	auditErr := err
	if auditErr == nil && len(fieldErrs) > 0 {
		auditErr = fmt.Errorf("failed to decrypt %d of %d fields", len(fieldErrs), len(record.EncryptedData))
	}
	id := recordID.String()
	p.audit.LogEncryption(ctx, auditUsecase.EncryptionEvent{
		Operation: auditDomain.OperationDecrypt,
		DataType:  string(record.Kind),
		RecordID:  &id,
		Actor:     actor,
		KeyID:     record.EncryptionKeyID,
		Fields:    encryptedFieldNames(record),
		Err:       auditErr,
	})
	if accessReason != "" {
		p.audit.LogDataAccess(ctx, auditUsecase.DataAccessEvent{
			Operation:    auditDomain.OperationRead,
			DataType:     string(record.Kind),
			RecordID:     &id,
			Actor:        actor,
			AccessReason: accessReason,
			Err:          auditErr,
		})
	}

	return values, fieldErrs, err
}

func (p *protector) open(
	ctx context.Context,
	record *recordsDomain.EncryptedRecord,
) (map[string]string, fieldcrypt.FieldErrors, error) {
	schema, err := fieldcrypt.SchemaFor(record.Kind)
	if err != nil {
		return nil, nil, err
	}

	resolved, err := p.keys.ResolveKey(ctx, record.EncryptionKeyID)
	if err != nil {
		return nil, nil, err
	}

	values, fieldErrs := p.engine.DecryptFields(
		record.EncryptedData, schema, resolved.Material, resolved.Key.Algorithm,
	)
	return values, fieldErrs, nil
}

// Search finds active records by equality over a searchable field's blind index.
func (p *protector) Search(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	field, value string,
	actor auditDomain.Actor,
) ([]*recordsDomain.EncryptedRecord, error) {
	start := p.now()

	records, err := p.search(ctx, organizationID, kind, field, value)
	p.observe(ctx, "record_search", start, err)

	p.audit.LogDataAccess(ctx, auditUsecase.DataAccessEvent{
		Operation:    auditDomain.OperationRead,
		DataType:     string(kind),
		Actor:        actor,
		AccessReason: "blind_index_search",
		Fields:       []string{field},
		Err:          err,
	})

	return records, err
}

func (p *protector) search(
	ctx context.Context,
	organizationID int64,
	kind fieldcrypt.RecordKind,
	field, value string,
) ([]*recordsDomain.EncryptedRecord, error) {
	schema, err := fieldcrypt.SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	if !schema.IsSearchable(field) {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "field %q is not searchable for %s", field, kind)
	}

	resolved, err := p.keys.ResolveDataKey(ctx, organizationID, schema.DataType())
	if err != nil {
		return nil, err
	}

	digest, err := p.indexer.Compute(resolved.Material, value)
	if err != nil {
		return nil, err
	}

	return p.recordRepo.SearchByBlindIndex(ctx, organizationID, kind, field, digest)
}

func (p *protector) observe(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.business.RecordOperation(ctx, metricsDomain, operation, status)
	p.business.RecordDuration(ctx, metricsDomain, operation, p.now().Sub(start), status)
}

// validateSealInput rejects malformed seal requests before any key is resolved.
func validateSealInput(organizationID int64, values map[string]string) error {
	err := validation.Errors{
		"organization_id": validation.Validate(organizationID, appValidation.OrganizationID),
		"values":          validation.Validate(values, appValidation.FieldValues),
	}.Filter()
	return appValidation.WrapValidationError(err)
}

func encryptedFieldNames(record *recordsDomain.EncryptedRecord) []string {
	if len(record.EncryptedData) == 0 {
		return nil
	}
	fields := make([]string, 0, len(record.EncryptedData))
	for field := range record.EncryptedData {
		fields = append(fields, field)
	}
	return fields
}
