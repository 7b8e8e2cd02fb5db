package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	rotationUsecase "github.com/clinicbase/phivault/internal/rotation/usecase"
)

// RunRotateOrganizationKey rotates an organization key and re-wraps the
// organization's usable data keys under the new one. Record payloads are not
// touched, so this is cheap compared to data key rotation.
//
// Requirements: Database must be migrated and MASTER_ENCRYPTION_KEY must be set.
func RunRotateOrganizationKey(
	ctx context.Context,
	orchestrator rotationUsecase.Orchestrator,
	logger *slog.Logger,
	out io.Writer,
	keyID string,
	operatorID int64,
	organizationID int64,
	format string,
) error {
	if keyID == "" {
		return fmt.Errorf("key-id is required")
	}

	logger.Info("rotating organization key",
		slog.String("key_id", keyID),
		slog.Int64("organization_id", organizationID),
	)

	result, err := orchestrator.RotateOrganizationKey(ctx, keyID, operatorActor(operatorID, organizationID))
	if err != nil {
		return fmt.Errorf("failed to rotate organization key: %w", err)
	}

	if format == "json" {
		outputResultJSON(out, result)
	} else {
		outputResultText(out, result)
	}

	logger.Info("organization key rotation finished",
		slog.String("old_key_id", result.OldKeyID),
		slog.String("new_key_id", result.NewKeyID),
		slog.Int("processed", result.Processed),
		slog.Int("errors", result.ErrorCount),
	)

	if !result.Success {
		return fmt.Errorf("rotation completed with %d data key error(s)", result.ErrorCount)
	}
	return nil
}
