package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	rotationUsecase "github.com/clinicbase/phivault/internal/rotation/usecase"
)

// RunRotationStatus reports how a single key stands against the rotation policy.
func RunRotationStatus(
	ctx context.Context,
	orchestrator rotationUsecase.Orchestrator,
	logger *slog.Logger,
	out io.Writer,
	keyID string,
	format string,
) error {
	if keyID == "" {
		return fmt.Errorf("key-id is required")
	}

	status, err := orchestrator.CheckRotationStatus(ctx, keyID)
	if err != nil {
		return fmt.Errorf("failed to check rotation status: %w", err)
	}

	if format == "json" {
		outputStatusJSON(out, []*rotationUsecase.Status{status})
	} else {
		outputStatusText(out, status)
	}

	logger.Info("rotation status checked",
		slog.String("key_id", keyID),
		slog.Bool("needs_rotation", status.NeedsRotation),
	)

	return nil
}

// RunKeysNeedingRotation lists every active key of an organization that is due
// for rotation under the configured policy.
func RunKeysNeedingRotation(
	ctx context.Context,
	orchestrator rotationUsecase.Orchestrator,
	logger *slog.Logger,
	out io.Writer,
	organizationID int64,
	format string,
) error {
	if organizationID <= 0 {
		return fmt.Errorf("organization-id must be a positive number, got: %d", organizationID)
	}

	statuses, err := orchestrator.ListKeysNeedingRotation(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("failed to list keys needing rotation: %w", err)
	}

	if format == "json" {
		outputStatusJSON(out, statuses)
	} else {
		if len(statuses) == 0 {
			fmt.Fprintln(out, "No keys need rotation")
		}
		for _, status := range statuses {
			outputStatusText(out, status)
		}
	}

	logger.Info("keys needing rotation listed",
		slog.Int64("organization_id", organizationID),
		slog.Int("count", len(statuses)),
	)

	return nil
}

// outputStatusText outputs a rotation status in human-readable text format.
func outputStatusText(out io.Writer, status *rotationUsecase.Status) {
	fmt.Fprintf(out, "Key %s (%s): age %d day(s), policy %d day(s)\n",
		status.KeyID, status.KeyType, status.AgeDays, status.RotationPeriodDays)
	switch {
	case status.Overdue:
		fmt.Fprintln(out, "  OVERDUE: rotation grace period has elapsed")
	case status.NeedsRotation:
		fmt.Fprintln(out, "  needs rotation")
	default:
		fmt.Fprintf(out, "  %d day(s) until rotation\n", status.DaysUntilRotation)
	}
}

// outputStatusJSON outputs rotation statuses in JSON format for machine consumption.
func outputStatusJSON(out io.Writer, statuses []*rotationUsecase.Status) {
	payload := make([]map[string]interface{}, 0, len(statuses))
	for _, status := range statuses {
		payload = append(payload, map[string]interface{}{
			"key_id":               status.KeyID,
			"key_type":             status.KeyType,
			"age_days":             status.AgeDays,
			"rotation_period_days": status.RotationPeriodDays,
			"needs_rotation":       status.NeedsRotation,
			"days_until_rotation":  status.DaysUntilRotation,
			"overdue":              status.Overdue,
		})
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(out, string(jsonBytes))
}
