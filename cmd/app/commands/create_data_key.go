package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/clinicbase/phivault/internal/fieldcrypt"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
)

// RunCreateDataKey creates a data key for one record category of an organization,
// wrapped under the organization's active key. The organization key must exist.
//
// Requirements: Database must be migrated and MASTER_ENCRYPTION_KEY must be set.
func RunCreateDataKey(
	ctx context.Context,
	keys keysUsecase.KeyHierarchy,
	logger *slog.Logger,
	out io.Writer,
	organizationID int64,
	dataType string,
	algorithmStr string,
) error {
	if organizationID <= 0 {
		return fmt.Errorf("organization-id must be a positive number, got: %d", organizationID)
	}

	// Only known record categories get keys
	if _, err := fieldcrypt.SchemaFor(fieldcrypt.RecordKind(dataType)); err != nil {
		return fmt.Errorf("invalid data type: %s (valid options: %s)", dataType, knownRecordKinds())
	}

	algorithm, err := parseAlgorithm(algorithmStr)
	if err != nil {
		return err
	}

	logger.Info("creating data key",
		slog.Int64("organization_id", organizationID),
		slog.String("data_type", dataType),
		slog.String("algorithm", algorithmStr),
	)

	key, err := keys.CreateDataKey(ctx, organizationID, dataType, algorithm)
	if err != nil {
		return fmt.Errorf("failed to create data key: %w", err)
	}

	fmt.Fprintf(out, "Created data key %s (version %d, %s)\n", key.KeyID, key.Version, key.Algorithm)

	logger.Info("data key created",
		slog.String("key_id", key.KeyID),
		slog.Int64("organization_id", organizationID),
		slog.String("data_type", dataType),
	)

	return nil
}

// knownRecordKinds renders the valid data type options for error messages.
func knownRecordKinds() string {
	return fmt.Sprintf(
		"%s, %s, %s, %s",
		fieldcrypt.RecordCaseHistory,
		fieldcrypt.RecordMentalStatus,
		fieldcrypt.RecordQuestionnaire,
		fieldcrypt.RecordAppointment,
	)
}
