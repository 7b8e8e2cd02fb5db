package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	rotationUsecase "github.com/clinicbase/phivault/internal/rotation/usecase"
)

// RunRotateDataKey rotates a data key and re-encrypts every record still
// referencing it. The old key is deprecated, not retired, so existing data stays
// readable through the grace period. Per-record failures are reported but do not
// abort the run; rerun the command after fixing them to finish the migration.
//
// Requirements: Database must be migrated and MASTER_ENCRYPTION_KEY must be set.
func RunRotateDataKey(
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

	logger.Info("rotating data key",
		slog.String("key_id", keyID),
		slog.Int64("organization_id", organizationID),
	)

	result, err := orchestrator.RotateDataKey(ctx, keyID, operatorActor(operatorID, organizationID))
	if err != nil {
		return fmt.Errorf("failed to rotate data key: %w", err)
	}

	if format == "json" {
		outputResultJSON(out, result)
	} else {
		outputResultText(out, result)
	}

	logger.Info("data key rotation finished",
		slog.String("old_key_id", result.OldKeyID),
		slog.String("new_key_id", result.NewKeyID),
		slog.Int("processed", result.Processed),
		slog.Int("errors", result.ErrorCount),
	)

	if !result.Success {
		return fmt.Errorf("rotation completed with %d record error(s)", result.ErrorCount)
	}
	return nil
}

// operatorActor builds the audit actor for an operator-initiated command.
func operatorActor(operatorID, organizationID int64) auditDomain.Actor {
	actor := auditDomain.Actor{
		UserRole:       "admin",
		OrganizationID: organizationID,
	}
	if operatorID > 0 {
		actor.UserID = &operatorID
	}
	return actor
}

// outputResultText outputs a rotation result in human-readable text format.
func outputResultText(out io.Writer, result *rotationUsecase.Result) {
	fmt.Fprintf(out, "Rotated %s to %s\n", result.OldKeyID, result.NewKeyID)
	fmt.Fprintf(out, "Processed: %d, succeeded: %d, failed: %d\n",
		result.Processed, result.SuccessCount, result.ErrorCount)
	for _, detail := range result.Errors {
		fmt.Fprintf(out, "  error: %s\n", detail)
	}
}

// outputResultJSON outputs a rotation result in JSON format for machine consumption.
func outputResultJSON(out io.Writer, result *rotationUsecase.Result) {
	payload := map[string]interface{}{
		"old_key_id": result.OldKeyID,
		"new_key_id": result.NewKeyID,
		"processed":  result.Processed,
		"succeeded":  result.SuccessCount,
		"failed":     result.ErrorCount,
		"errors":     result.Errors,
		"success":    result.Success,
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(out, string(jsonBytes))
}
