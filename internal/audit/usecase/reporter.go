package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
)

// ReporterConfig holds compliance report thresholds.
type ReporterConfig struct {
	// FailedAccessThreshold flags users with more failed accesses than this in
	// the report period.
	FailedAccessThreshold int

	// WindowStartHour and WindowEndHour bound the expected access window; any
	// access outside [start, end) is flagged.
	WindowStartHour int
	WindowEndHour   int
}

// SuspiciousActivity flags an access pattern the report considers anomalous.
type SuspiciousActivity struct {
	Kind   string // "excessive_failures" or "after_hours_access"
	UserID *int64
	Count  int
	Detail string
}

// Report aggregates an organization's audit activity over a period.
type Report struct {
	OrganizationID  int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalOperations int
	ByOperation     map[auditDomain.Operation]int
	ByDataType      map[string]int
	UniqueUsers     int
	SuccessCount    int
	FailureCount    int
	Suspicious      []SuspiciousActivity
	Logs            []*auditDomain.Record
}

type reporter struct {
	config ReporterConfig
	repo   AuditRepository
	logger *slog.Logger
}

// NewReporter creates a new compliance reporter.
func NewReporter(config ReporterConfig, repo AuditRepository, logger *slog.Logger) Reporter {
	return &reporter{
		config: config,
		repo:   repo,
		logger: logger,
	}
}

// GenerateComplianceReport aggregates counts per operation and data type,
// unique users, success/failure totals, and flags suspicious access patterns.
func (r *reporter) GenerateComplianceReport(
	ctx context.Context,
	organizationID int64,
	start, end time.Time,
) (*Report, error) {
	logs, err := r.repo.List(ctx, auditDomain.Filter{
		OrganizationID: organizationID,
		Start:          start,
		End:            end,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		OrganizationID: organizationID,
		PeriodStart:    start,
		PeriodEnd:      end,
		ByOperation:    make(map[auditDomain.Operation]int),
		ByDataType:     make(map[string]int),
		Logs:           logs,
	}

	users := make(map[int64]struct{})
	failuresByUser := make(map[int64]int)
	afterHoursByUser := make(map[int64]int)

	for _, log := range logs {
		report.TotalOperations++
		report.ByOperation[log.Operation]++
		if log.DataType != "" {
			report.ByDataType[log.DataType]++
		}

		if log.Success {
			report.SuccessCount++
		} else {
			report.FailureCount++
		}

		if log.UserID != nil {
			users[*log.UserID] = struct{}{}
			if !log.Success {
				failuresByUser[*log.UserID]++
			}
			hour := log.CreatedAt.Hour()
			if hour < r.config.WindowStartHour || hour >= r.config.WindowEndHour {
				afterHoursByUser[*log.UserID]++
			}
		}
	}
	report.UniqueUsers = len(users)

	for userID, count := range failuresByUser {
		if count > r.config.FailedAccessThreshold {
			id := userID
			report.Suspicious = append(report.Suspicious, SuspiciousActivity{
				Kind:   "excessive_failures",
				UserID: &id,
				Count:  count,
				Detail: fmt.Sprintf("%d failed accesses (threshold %d)", count, r.config.FailedAccessThreshold),
			})
		}
	}
	for userID, count := range afterHoursByUser {
		id := userID
		report.Suspicious = append(report.Suspicious, SuspiciousActivity{
			Kind:   "after_hours_access",
			UserID: &id,
			Count:  count,
			Detail: fmt.Sprintf(
				"%d accesses outside %02d:00-%02d:00",
				count, r.config.WindowStartHour, r.config.WindowEndHour,
			),
		})
	}

	return report, nil
}

// CleanupExpiredLogs deletes records older than the cutoff.
func (r *reporter) CleanupExpiredLogs(
	ctx context.Context,
	organizationID int64,
	before time.Time,
) (int64, error) {
	deleted, err := r.repo.DeleteBefore(ctx, organizationID, before)
	if err != nil {
		return 0, err
	}

	r.logger.Info("expired audit logs removed",
		slog.Int64("organization_id", organizationID),
		slog.Time("before", before),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}
