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

// RunComplianceReport generates an audit activity report for an organization over
// the trailing number of days, including suspicious access patterns.
//
// Requirements: Database must be migrated and accessible.
func RunComplianceReport(
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
	if days <= 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	logger.Info("generating compliance report",
		slog.Int64("organization_id", organizationID),
		slog.Int("days", days),
	)

	report, err := reporter.GenerateComplianceReport(ctx, organizationID, start, end)
	if err != nil {
		return fmt.Errorf("failed to generate compliance report: %w", err)
	}

	if format == "json" {
		outputReportJSON(out, report)
	} else {
		outputReportText(out, report)
	}

	logger.Info("compliance report generated",
		slog.Int64("organization_id", organizationID),
		slog.Int("total_operations", report.TotalOperations),
		slog.Int("suspicious", len(report.Suspicious)),
	)

	return nil
}

// outputReportText outputs the report in human-readable text format.
func outputReportText(out io.Writer, report *auditUsecase.Report) {
	fmt.Fprintf(out, "Compliance report for organization %d\n", report.OrganizationID)
	fmt.Fprintf(out, "Period: %s to %s\n",
		report.PeriodStart.Format(time.RFC3339), report.PeriodEnd.Format(time.RFC3339))
	fmt.Fprintf(out, "Total operations: %d (%d succeeded, %d failed)\n",
		report.TotalOperations, report.SuccessCount, report.FailureCount)
	fmt.Fprintf(out, "Unique users: %d\n", report.UniqueUsers)

	fmt.Fprintln(out, "By operation:")
	for operation, count := range report.ByOperation {
		fmt.Fprintf(out, "  %s: %d\n", operation, count)
	}

	fmt.Fprintln(out, "By data type:")
	for dataType, count := range report.ByDataType {
		fmt.Fprintf(out, "  %s: %d\n", dataType, count)
	}

	if len(report.Suspicious) == 0 {
		fmt.Fprintln(out, "No suspicious activity detected")
		return
	}
	fmt.Fprintf(out, "Suspicious activity (%d):\n", len(report.Suspicious))
	for _, activity := range report.Suspicious {
		if activity.UserID != nil {
			fmt.Fprintf(out, "  %s: user %d, %d event(s)\n", activity.Kind, *activity.UserID, activity.Count)
		} else {
			fmt.Fprintf(out, "  %s: %d event(s)\n", activity.Kind, activity.Count)
		}
	}
}

// outputReportJSON outputs the report in JSON format for machine consumption.
func outputReportJSON(out io.Writer, report *auditUsecase.Report) {
	suspicious := make([]map[string]interface{}, 0, len(report.Suspicious))
	for _, activity := range report.Suspicious {
		entry := map[string]interface{}{
			"kind":  activity.Kind,
			"count": activity.Count,
		}
		if activity.UserID != nil {
			entry["user_id"] = *activity.UserID
		}
		suspicious = append(suspicious, entry)
	}

	payload := map[string]interface{}{
		"organization_id":  report.OrganizationID,
		"period_start":     report.PeriodStart.Format(time.RFC3339),
		"period_end":       report.PeriodEnd.Format(time.RFC3339),
		"total_operations": report.TotalOperations,
		"success_count":    report.SuccessCount,
		"failure_count":    report.FailureCount,
		"unique_users":     report.UniqueUsers,
		"by_operation":     report.ByOperation,
		"by_data_type":     report.ByDataType,
		"suspicious":       suspicious,
	}

	jsonBytes, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(out, string(jsonBytes))
}
