package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
)

// RunCleanAuditLogs deletes an organization's audit logs older than the specified
// number of days. Retention for protected health information audit trails is long
// by default; only lower it deliberately.
//
// Requirements: Database must be migrated and accessible.
func RunCleanAuditLogs(
	ctx context.Context,
	reporter auditUsecase.Reporter,
	logger *slog.Logger,
	out io.Writer,
	organizationID int64,
	days int,
	format string,
) error {
	if organizationID <= 0 {
		return fmt.Errorf("organization-id must be a positive number, got: %d", organizationID)
	}
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}

	before := time.Now().UTC().AddDate(0, 0, -days)

	logger.Info("cleaning audit logs",
		slog.Int64("organization_id", organizationID),
		slog.Int("days", days),
	)

	count, err := reporter.CleanupExpiredLogs(ctx, organizationID, before)
	if err != nil {
		return fmt.Errorf("failed to delete audit logs: %w", err)
	}

	if format == "json" {
		outputCleanJSON(out, count, days)
	} else {
		outputCleanText(out, count, days)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Int("days", days),
	)

	return nil
}

// outputCleanText outputs the result in human-readable text format.
func outputCleanText(out io.Writer, count int64, days int) {
	fmt.Fprintf(out, "Successfully deleted %d audit log(s) older than %d day(s)\n", count, days)
}

// outputCleanJSON outputs the result in JSON format for machine consumption.
func outputCleanJSON(out io.Writer, count int64, days int) {
	result := map[string]interface{}{
		"count": count,
		"days":  days,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(out, string(jsonBytes))
}
