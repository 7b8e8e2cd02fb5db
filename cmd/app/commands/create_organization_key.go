package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
)

// RunCreateOrganizationKey creates the organization key that wraps all of an
// organization's data keys. Should be run once when onboarding an organization.
//
// Requirements: Database must be migrated and MASTER_ENCRYPTION_KEY must be set.
func RunCreateOrganizationKey(
	ctx context.Context,
	keys keysUsecase.KeyHierarchy,
	logger *slog.Logger,
	out io.Writer,
	organizationID int64,
	algorithmStr string,
) error {
	if organizationID <= 0 {
		return fmt.Errorf("organization-id must be a positive number, got: %d", organizationID)
	}

	algorithm, err := parseAlgorithm(algorithmStr)
	if err != nil {
		return err
	}

	logger.Info("creating organization key",
		slog.Int64("organization_id", organizationID),
		slog.String("algorithm", algorithmStr),
	)

	key, err := keys.CreateOrganizationKey(ctx, organizationID, algorithm)
	if err != nil {
		return fmt.Errorf("failed to create organization key: %w", err)
	}

	fmt.Fprintf(out, "Created organization key %s (version %d, %s)\n", key.KeyID, key.Version, key.Algorithm)

	logger.Info("organization key created",
		slog.String("key_id", key.KeyID),
		slog.Int64("organization_id", organizationID),
	)

	return nil
}
