package app

import (
	"fmt"

	"github.com/clinicbase/phivault/internal/blindindex"
	"github.com/clinicbase/phivault/internal/fieldcrypt"
	recordsRepository "github.com/clinicbase/phivault/internal/records/repository"
	recordsUsecase "github.com/clinicbase/phivault/internal/records/usecase"
)

// RecordRepository returns the encrypted record repository based on database driver.
func (c *Container) RecordRepository() (recordsUsecase.RecordRepository, error) {
	var err error
	c.recordRepoInit.Do(func() {
		c.recordRepo, err = c.initRecordRepository()
		if err != nil {
			c.initErrors["recordRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recordRepo"]; exists {
		return nil, storedErr
	}
	return c.recordRepo, nil
}

// FieldEngine returns the field encryption engine.
func (c *Container) FieldEngine() fieldcrypt.Engine {
	c.fieldEngineInit.Do(func() {
		c.fieldEngine = fieldcrypt.NewEngine(c.KeyWrapper())
	})
	return c.fieldEngine
}

// Indexer returns the blind index builder.
func (c *Container) Indexer() blindindex.Indexer {
	c.indexerInit.Do(func() {
		c.indexer = blindindex.NewIndexer()
	})
	return c.indexer
}

// Protector returns the record protector use case.
func (c *Container) Protector() (recordsUsecase.Protector, error) {
	var err error
	c.protectorInit.Do(func() {
		c.protector, err = c.initProtector()
		if err != nil {
			c.initErrors["protector"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["protector"]; exists {
		return nil, storedErr
	}
	return c.protector, nil
}

// initRecordRepository creates the record repository based on the database driver.
func (c *Container) initRecordRepository() (recordsUsecase.RecordRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for record repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return recordsRepository.NewMySQLRecordRepository(db), nil
	case "postgres":
		return recordsRepository.NewPostgreSQLRecordRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initProtector creates the record protector with all its dependencies.
func (c *Container) initProtector() (recordsUsecase.Protector, error) {
	recordRepo, err := c.RecordRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get record repository for protector: %w", err)
	}

	keyHierarchy, err := c.KeyHierarchy()
	if err != nil {
		return nil, fmt.Errorf("failed to get key hierarchy for protector: %w", err)
	}

	auditWriter, err := c.AuditWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit writer for protector: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for protector: %w", err)
	}

	return recordsUsecase.NewProtector(
		recordRepo,
		keyHierarchy,
		c.FieldEngine(),
		c.Indexer(),
		auditWriter,
		businessMetrics,
		c.Logger(),
	), nil
}
