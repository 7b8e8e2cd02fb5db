package app

import (
	"context"
	"fmt"
	"log/slog"

	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	keysRepository "github.com/clinicbase/phivault/internal/keys/repository"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
	keysUsecase "github.com/clinicbase/phivault/internal/keys/usecase"
)

// MasterKeyring returns the master keyring loaded from environment variables.
func (c *Container) MasterKeyring() (*keysDomain.MasterKeyring, error) {
	var err error
	c.masterKeyringInit.Do(func() {
		c.masterKeyring, err = c.initMasterKeyring()
		if err != nil {
			c.initErrors["masterKeyring"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["masterKeyring"]; exists {
		return nil, storedErr
	}
	return c.masterKeyring, nil
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KeyWrapper returns the key wrapper service.
func (c *Container) KeyWrapper() cryptoService.KeyWrapper {
	c.keyWrapperInit.Do(func() {
		c.keyWrapper = cryptoService.NewKeyWrapper(c.AEADManager())
	})
	return c.keyWrapper
}

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// KeyRepository returns the encryption key repository based on database driver.
func (c *Container) KeyRepository() (keysUsecase.KeyRepository, error) {
	var err error
	c.keyRepoInit.Do(func() {
		c.keyRepo, err = c.initKeyRepository()
		if err != nil {
			c.initErrors["keyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyRepo"]; exists {
		return nil, storedErr
	}
	return c.keyRepo, nil
}

// KeyHierarchy returns the key hierarchy manager.
func (c *Container) KeyHierarchy() (keysUsecase.KeyHierarchy, error) {
	var err error
	c.keyHierarchyInit.Do(func() {
		c.keyHierarchy, err = c.initKeyHierarchy()
		if err != nil {
			c.initErrors["keyHierarchy"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyHierarchy"]; exists {
		return nil, storedErr
	}
	return c.keyHierarchy, nil
}

// initMasterKeyring loads the master keyring, unwrapping it through the KMS
// when a provider is configured.
func (c *Container) initMasterKeyring() (*keysDomain.MasterKeyring, error) {
	if c.config.KMSProvider == "" {
		keyring, err := keysDomain.LoadMasterKeyringFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load master keyring: %w", err)
		}
		return keyring, nil
	}

	ctx := context.Background()
	keeper, err := c.KMSService().OpenKeeper(ctx, c.config.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			c.Logger().Error("failed to close KMS keeper", slog.Any("error", closeErr))
		}
	}()

	keyring, err := keysDomain.LoadMasterKeyringWithKeeper(ctx, keeper)
	if err != nil {
		return nil, fmt.Errorf("failed to load master keyring via KMS: %w", err)
	}
	return keyring, nil
}

// initKeyRepository creates the key repository based on the database driver.
func (c *Container) initKeyRepository() (keysUsecase.KeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return keysRepository.NewMySQLKeyRepository(db), nil
	case "postgres":
		return keysRepository.NewPostgreSQLKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initKeyHierarchy creates the key hierarchy manager with all its dependencies.
func (c *Container) initKeyHierarchy() (keysUsecase.KeyHierarchy, error) {
	keyRepo, err := c.KeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get key repository for key hierarchy: %w", err)
	}

	keyring, err := c.MasterKeyring()
	if err != nil {
		return nil, fmt.Errorf("failed to get master keyring for key hierarchy: %w", err)
	}

	auditWriter, err := c.AuditWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit writer for key hierarchy: %w", err)
	}

	hierarchyConfig := keysUsecase.Config{
		CacheTTL:      c.config.KeyCacheTTL,
		SweepInterval: c.config.KeyCacheSweepInterval,
	}

	return keysUsecase.NewKeyHierarchy(
		hierarchyConfig, keyRepo, c.KeyWrapper(), keyring, auditWriter, c.Logger(),
	), nil
}
