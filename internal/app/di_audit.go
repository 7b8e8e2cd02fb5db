package app

import (
	"fmt"

	auditRepository "github.com/clinicbase/phivault/internal/audit/repository"
	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
)

// AuditRepository returns the audit log repository based on database driver.
func (c *Container) AuditRepository() (auditUsecase.AuditRepository, error) {
	var err error
	c.auditRepoInit.Do(func() {
		c.auditRepo, err = c.initAuditRepository()
		if err != nil {
			c.initErrors["auditRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditRepo"]; exists {
		return nil, storedErr
	}
	return c.auditRepo, nil
}

// AuditWriter returns the batched audit log writer.
func (c *Container) AuditWriter() (auditUsecase.Writer, error) {
	var err error
	c.auditWriterInit.Do(func() {
		c.auditWriter, err = c.initAuditWriter()
		if err != nil {
			c.initErrors["auditWriter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["auditWriter"]; exists {
		return nil, storedErr
	}
	return c.auditWriter, nil
}

// AuditReporter returns the compliance reporter.
func (c *Container) AuditReporter() (auditUsecase.Reporter, error) {
	var err error
	c.reporterInit.Do(func() {
		c.reporter, err = c.initAuditReporter()
		if err != nil {
			c.initErrors["reporter"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["reporter"]; exists {
		return nil, storedErr
	}
	return c.reporter, nil
}

// initAuditRepository creates the audit repository based on the database driver.
func (c *Container) initAuditRepository() (auditUsecase.AuditRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for audit repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return auditRepository.NewMySQLAuditRepository(db), nil
	case "postgres":
		return auditRepository.NewPostgreSQLAuditRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initAuditWriter creates the audit writer with all its dependencies.
func (c *Container) initAuditWriter() (auditUsecase.Writer, error) {
	auditRepo, err := c.AuditRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for audit writer: %w", err)
	}

	writerConfig := auditUsecase.WriterConfig{
		BatchSize:     c.config.AuditBatchSize,
		FlushInterval: c.config.AuditFlushInterval,
	}

	return auditUsecase.NewWriter(writerConfig, auditRepo, c.Logger()), nil
}

// initAuditReporter creates the compliance reporter with all its dependencies.
func (c *Container) initAuditReporter() (auditUsecase.Reporter, error) {
	auditRepo, err := c.AuditRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit repository for audit reporter: %w", err)
	}

	reporterConfig := auditUsecase.ReporterConfig{
		FailedAccessThreshold: c.config.AuditFailedAccessThreshold,
		WindowStartHour:       c.config.AuditAccessWindowStartHour,
		WindowEndHour:         c.config.AuditAccessWindowEndHour,
	}

	return auditUsecase.NewReporter(reporterConfig, auditRepo, c.Logger()), nil
}
