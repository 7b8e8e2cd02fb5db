package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	rotationUsecase "github.com/clinicbase/phivault/internal/rotation/usecase"
)

// RunRetireDeprecatedKeys retires the organization's deprecated keys whose grace
// period has elapsed. Retired keys can no longer decrypt anything, so run this
// only after rotation re-encryption has fully completed.
func RunRetireDeprecatedKeys(
	ctx context.Context,
	orchestrator rotationUsecase.Orchestrator,
	logger *slog.Logger,
	out io.Writer,
	organizationID int64,
) error {
	if organizationID <= 0 {
		return fmt.Errorf("organization-id must be a positive number, got: %d", organizationID)
	}

	logger.Info("retiring deprecated keys",
		slog.Int64("organization_id", organizationID),
	)

	count, err := orchestrator.RetireDeprecatedKeys(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("failed to retire deprecated keys: %w", err)
	}

	fmt.Fprintf(out, "Retired %d key(s)\n", count)

	logger.Info("deprecated keys retired",
		slog.Int64("organization_id", organizationID),
		slog.Int("count", count),
	)

	return nil
}
