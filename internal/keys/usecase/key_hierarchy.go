package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	auditDomain "github.com/clinicbase/phivault/internal/audit/domain"
	auditUsecase "github.com/clinicbase/phivault/internal/audit/usecase"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
)

// Config holds key hierarchy cache settings.
type Config struct {
	// CacheTTL is how long unwrapped key material stays valid in the cache.
	CacheTTL time.Duration

	// SweepInterval is how often the background sweep evicts expired entries.
	SweepInterval time.Duration
}

type cacheEntry struct {
	material  []byte
	expiresAt time.Time
}

// keyHierarchy implements the KeyHierarchy interface.
//
// Callers always receive their own copy of key material; eviction zeroes only
// the cache's copy, so material a caller is still using cannot be wiped out
// from under it by Invalidate or the sweep.
type keyHierarchy struct {
	config  Config
	keyRepo KeyRepository
	wrapper cryptoService.KeyWrapper
	keyring *keysDomain.MasterKeyring
	audit   auditUsecase.Writer
	logger  *slog.Logger

	// now is replaceable in tests to drive TTL expiry without sleeping.
	now func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// NewKeyHierarchy creates a new key hierarchy manager.
func NewKeyHierarchy(
	config Config,
	keyRepo KeyRepository,
	wrapper cryptoService.KeyWrapper,
	keyring *keysDomain.MasterKeyring,
	audit auditUsecase.Writer,
	logger *slog.Logger,
) KeyHierarchy {
	return &keyHierarchy{
		config:  config,
		keyRepo: keyRepo,
		wrapper: wrapper,
		keyring: keyring,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// CreateOrganizationKey generates, wraps and persists a new organization key.
func (k *keyHierarchy) CreateOrganizationKey(
	ctx context.Context,
	organizationID int64,
	alg keysDomain.Algorithm,
) (*keysDomain.EncryptionKey, error) {
	material, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(material)

	wrapped, err := k.wrapper.Wrap(material, k.keyring.Master().Key, alg)
	if err != nil {
		return nil, err
	}

	now := k.now().UTC()
	key := &keysDomain.EncryptionKey{
		KeyID:          keysDomain.NewOrganizationKeyID(organizationID, now),
		KeyType:        keysDomain.KeyTypeOrganization,
		Algorithm:      alg,
		WrappedKey:     wrapped,
		OrganizationID: &organizationID,
		Version:        1,
		Status:         keysDomain.KeyStatusActive,
		CreatedAt:      now,
	}

	err = k.keyRepo.Create(ctx, key)
	k.audit.LogKeyManagement(ctx, auditUsecase.KeyManagementEvent{
		Action:     "generate_organization_key",
		Actor:      auditDomain.Actor{OrganizationID: organizationID},
		KeyID:      key.KeyID,
		KeyVersion: key.Version,
		Err:        err,
	})
	if err != nil {
		return nil, err
	}
	k.seed(key.KeyID, material)

	k.logger.Info("organization key created",
		slog.String("key_id", key.KeyID),
		slog.Int64("organization_id", organizationID),
		slog.String("algorithm", string(alg)),
	)
	return key, nil
}

// CreateDataKey generates a new data key wrapped under the organization's
// active key.
func (k *keyHierarchy) CreateDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
	alg keysDomain.Algorithm,
) (*keysDomain.EncryptionKey, error) {
	orgKey, err := k.keyRepo.GetActiveOrganizationKey(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	orgMaterial, err := k.materialFor(ctx, orgKey)
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(orgMaterial)

	material, err := cryptoService.GenerateKeyMaterial()
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(material)

	wrapped, err := k.wrapper.Wrap(material, orgMaterial, orgKey.Algorithm)
	if err != nil {
		return nil, err
	}

	now := k.now().UTC()
	key := &keysDomain.EncryptionKey{
		KeyID:          keysDomain.NewDataKeyID(organizationID, dataType, now),
		KeyType:        keysDomain.KeyTypeData,
		Algorithm:      alg,
		WrappedKey:     wrapped,
		OrganizationID: &organizationID,
		DataType:       &dataType,
		Version:        1,
		Status:         keysDomain.KeyStatusActive,
		CreatedAt:      now,
	}

	err = k.keyRepo.Create(ctx, key)
	k.audit.LogKeyManagement(ctx, auditUsecase.KeyManagementEvent{
		Action:     "generate_data_key",
		Actor:      auditDomain.Actor{OrganizationID: organizationID},
		KeyID:      key.KeyID,
		KeyVersion: key.Version,
		Err:        err,
	})
	if err != nil {
		return nil, err
	}
	k.seed(key.KeyID, material)

	k.logger.Info("data key created",
		slog.String("key_id", key.KeyID),
		slog.Int64("organization_id", organizationID),
		slog.String("data_type", dataType),
		slog.String("algorithm", string(alg)),
	)
	return key, nil
}

// ResolveDataKey returns the active data key for new encryptions.
func (k *keyHierarchy) ResolveDataKey(
	ctx context.Context,
	organizationID int64,
	dataType string,
) (*ResolvedKey, error) {
	key, err := k.keyRepo.GetActiveDataKey(ctx, organizationID, dataType)
	if err != nil {
		return nil, err
	}

	material, err := k.materialFor(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ResolvedKey{Key: key, Material: material}, nil
}

// ResolveKey returns any usable key by ID for decryption.
func (k *keyHierarchy) ResolveKey(ctx context.Context, keyID string) (*ResolvedKey, error) {
	key, err := k.keyRepo.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !key.Usable() {
		return nil, keysDomain.ErrKeyRetired
	}

	material, err := k.materialFor(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ResolvedKey{Key: key, Material: material}, nil
}

// materialFor returns the plaintext material of a key, consulting the cache
// first. Concurrent misses for the same key ID share a single unwrap. The
// returned slice is owned by the caller; the cache keeps its own copy.
func (k *keyHierarchy) materialFor(
	ctx context.Context,
	key *keysDomain.EncryptionKey,
) ([]byte, error) {
	if material, ok := k.fromCache(key.KeyID); ok {
		return material, nil
	}

	v, err, _ := k.group.Do(key.KeyID, func() (any, error) {
		// Another waiter may have populated the cache while we queued.
		if material, ok := k.fromCache(key.KeyID); ok {
			return material, nil
		}

		material, err := k.unwrap(ctx, key)
		if err != nil {
			return nil, err
		}

		k.seed(key.KeyID, material)
		return material, nil
	})
	if err != nil {
		return nil, err
	}

	// The flight's result is shared by every waiter; hand each one its own
	// copy so zeroing by one caller cannot reach another.
	shared := v.([]byte)
	material := make([]byte, len(shared))
	copy(material, shared)
	return material, nil
}

// seed stores a copy of plaintext material in the cache, so the source slice
// stays valid no matter when the entry is evicted.
func (k *keyHierarchy) seed(keyID string, material []byte) {
	cached := make([]byte, len(material))
	copy(cached, material)

	k.mu.Lock()
	k.cache[keyID] = cacheEntry{
		material:  cached,
		expiresAt: k.now().Add(k.config.CacheTTL),
	}
	k.mu.Unlock()
}

// unwrap decrypts a stored key's material by walking up the hierarchy: data
// keys unwrap under their organization key, organization keys under the master
// key with a legacy-key fallback.
func (k *keyHierarchy) unwrap(
	ctx context.Context,
	key *keysDomain.EncryptionKey,
) ([]byte, error) {
	switch key.KeyType {
	case keysDomain.KeyTypeOrganization:
		material, err := k.wrapper.Unwrap(key.WrappedKey, k.keyring.Master().Key, key.Algorithm)
		if err == nil {
			return material, nil
		}
		if legacy, ok := k.keyring.Legacy(); ok {
			return k.wrapper.Unwrap(key.WrappedKey, legacy.Key, key.Algorithm)
		}
		return nil, err

	case keysDomain.KeyTypeData:
		if key.OrganizationID == nil {
			return nil, keysDomain.ErrKeyNotFound
		}
		orgKey, err := k.keyRepo.GetActiveOrganizationKey(ctx, *key.OrganizationID)
		if err != nil {
			return nil, err
		}
		orgMaterial, err := k.materialFor(ctx, orgKey)
		if err != nil {
			return nil, err
		}
		return k.wrapper.Unwrap(key.WrappedKey, orgMaterial, orgKey.Algorithm)

	default:
		return nil, keysDomain.ErrUnsupportedAlgorithm
	}
}

// fromCache returns a copy of a live cache entry's material. Copying happens
// under the read lock; eviction zeroes entries under the write lock, so the
// copy can never observe a partially zeroed slice.
func (k *keyHierarchy) fromCache(keyID string) ([]byte, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	entry, ok := k.cache[keyID]
	if !ok || k.now().After(entry.expiresAt) {
		return nil, false
	}

	material := make([]byte, len(entry.material))
	copy(material, entry.material)
	return material, true
}

// Invalidate drops a key from the material cache.
func (k *keyHierarchy) Invalidate(keyID string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if entry, ok := k.cache[keyID]; ok {
		keysDomain.Zero(entry.material)
		delete(k.cache, keyID)
	}
}

// Start runs the periodic cache sweep until the context is canceled.
func (k *keyHierarchy) Start(ctx context.Context) {
	k.logger.Info("starting key cache sweep",
		slog.Duration("ttl", k.config.CacheTTL),
		slog.Duration("interval", k.config.SweepInterval),
	)

	ticker := time.NewTicker(k.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("stopping key cache sweep")
			k.Close()
			return
		case <-ticker.C:
			k.sweep()
		}
	}
}

func (k *keyHierarchy) sweep() {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	for keyID, entry := range k.cache {
		if now.After(entry.expiresAt) {
			keysDomain.Zero(entry.material)
			delete(k.cache, keyID)
		}
	}
}

// Close evicts and zeroes all cached material.
func (k *keyHierarchy) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	for keyID, entry := range k.cache {
		keysDomain.Zero(entry.material)
		delete(k.cache, keyID)
	}
}
