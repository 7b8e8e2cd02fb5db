package app

import (
	"fmt"

	"golang.org/x/time/rate"

	rotationUsecase "github.com/clinicbase/phivault/internal/rotation/usecase"
)

// RotationOrchestrator returns the key rotation orchestrator.
func (c *Container) RotationOrchestrator() (rotationUsecase.Orchestrator, error) {
	var err error
	c.orchestratorInit.Do(func() {
		c.orchestrator, err = c.initRotationOrchestrator()
		if err != nil {
			c.initErrors["orchestrator"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["orchestrator"]; exists {
		return nil, storedErr
	}
	return c.orchestrator, nil
}

// initRotationOrchestrator creates the rotation orchestrator with all its dependencies.
func (c *Container) initRotationOrchestrator() (rotationUsecase.Orchestrator, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for rotation orchestrator: %w", err)
	}

	keyRepo, err := c.KeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key repository for rotation orchestrator: %w", err)
	}

	recordRepo, err := c.RecordRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get record repository for rotation orchestrator: %w", err)
	}

	keyHierarchy, err := c.KeyHierarchy()
	if err != nil {
		return nil, fmt.Errorf("failed to get key hierarchy for rotation orchestrator: %w", err)
	}

	keyring, err := c.MasterKeyring()
	if err != nil {
		return nil, fmt.Errorf("failed to get master keyring for rotation orchestrator: %w", err)
	}

	auditWriter, err := c.AuditWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit writer for rotation orchestrator: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for rotation orchestrator: %w", err)
	}

	// A zero writes-per-second setting disables throttling.
	writeLimit := rate.Inf
	if c.config.RotationWritesPerSec > 0 {
		writeLimit = rate.Limit(c.config.RotationWritesPerSec)
	}

	rotationConfig := rotationUsecase.Config{
		DataKeyRotationDays:         int(c.config.DataKeyRotationPeriod.Hours() / 24),
		OrganizationKeyRotationDays: int(c.config.OrgKeyRotationPeriod.Hours() / 24),
		GraceDays:                   int(c.config.RotationGracePeriod.Hours() / 24),
		RecordsPerSecond:            writeLimit,
	}

	return rotationUsecase.NewOrchestrator(
		rotationConfig,
		txManager,
		keyRepo,
		recordRepo,
		keyHierarchy,
		c.KeyWrapper(),
		c.FieldEngine(),
		c.Indexer(),
		keyring,
		auditWriter,
		businessMetrics,
		c.Logger(),
	), nil
}
