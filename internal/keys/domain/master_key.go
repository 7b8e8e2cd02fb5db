package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
)

// MasterKey is the root of the key hierarchy. It wraps every stored organization
// and data key, is supplied externally (environment or KMS), and is never persisted.
type MasterKey struct {
	ID  string
	Key []byte
}

// KMSKeeper abstracts a KMS-backed keeper used to unwrap the master key when it is
// stored as KMS ciphertext rather than plaintext base64. *secrets.Keeper from
// gocloud.dev implements it.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// MasterKeyring holds the active master key plus an optional legacy key kept for
// backward-compatible decryption of data written before the key hierarchy existed.
type MasterKeyring struct {
	master *MasterKey
	legacy *MasterKey
}

// Master returns the active master key.
func (m *MasterKeyring) Master() *MasterKey {
	return m.master
}

// Legacy returns the legacy decryption key and whether one is configured.
func (m *MasterKeyring) Legacy() (*MasterKey, bool) {
	if m.legacy == nil {
		return nil, false
	}
	return m.legacy, true
}

// Close zeroes all key material and resets the keyring.
func (m *MasterKeyring) Close() {
	if m.master != nil {
		Zero(m.master.Key)
		m.master = nil
	}
	if m.legacy != nil {
		Zero(m.legacy.Key)
		m.legacy = nil
	}
}

// decodeKey base64-decodes an environment value and enforces the exact key size.
func decodeKey(name, raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64: %v", ErrMasterKeyUnavailable, name, err)
	}
	if len(key) != KeySize {
		Zero(key)
		return nil, fmt.Errorf(
			"%w: %s must decode to %d bytes, got %d",
			ErrMasterKeyUnavailable, name, KeySize, len(key),
		)
	}
	return key, nil
}

// LoadMasterKeyringFromEnv loads the master keyring from environment variables.
//
// Variables:
//   - MASTER_ENCRYPTION_KEY: base64-encoded 32-byte master key (required)
//   - MASTER_KEY_ID: human-readable identifier (default "master")
//   - LEGACY_ENCRYPTION_KEY: optional base64-encoded 32-byte key for decrypting
//     data written before the key hierarchy was introduced
//
// A missing or wrong-length master key returns ErrMasterKeyUnavailable; startup
// must treat that as fatal.
func LoadMasterKeyringFromEnv() (*MasterKeyring, error) {
	raw := os.Getenv("MASTER_ENCRYPTION_KEY")
	if raw == "" {
		return nil, fmt.Errorf("%w: MASTER_ENCRYPTION_KEY is not set", ErrMasterKeyUnavailable)
	}

	id := os.Getenv("MASTER_KEY_ID")
	if id == "" {
		id = "master"
	}

	key, err := decodeKey("MASTER_ENCRYPTION_KEY", raw)
	if err != nil {
		return nil, err
	}

	keyring := &MasterKeyring{master: &MasterKey{ID: id, Key: key}}

	if legacyRaw := os.Getenv("LEGACY_ENCRYPTION_KEY"); legacyRaw != "" {
		legacyKey, err := decodeKey("LEGACY_ENCRYPTION_KEY", legacyRaw)
		if err != nil {
			keyring.Close()
			return nil, err
		}
		keyring.legacy = &MasterKey{ID: id + "-legacy", Key: legacyKey}
	}

	return keyring, nil
}

// LoadMasterKeyringWithKeeper loads the master keyring when the environment holds
// KMS ciphertext instead of plaintext key material. MASTER_ENCRYPTION_KEY must be
// the base64 of the KMS-encrypted master key; the keeper unwraps it.
func LoadMasterKeyringWithKeeper(ctx context.Context, keeper KMSKeeper) (*MasterKeyring, error) {
	raw := os.Getenv("MASTER_ENCRYPTION_KEY")
	if raw == "" {
		return nil, fmt.Errorf("%w: MASTER_ENCRYPTION_KEY is not set", ErrMasterKeyUnavailable)
	}

	id := os.Getenv("MASTER_KEY_ID")
	if id == "" {
		id = "master"
	}

	ciphertext, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: MASTER_ENCRYPTION_KEY is not valid base64: %v", ErrMasterKeyUnavailable, err,
		)
	}

	key, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: KMS decrypt failed: %v", ErrMasterKeyUnavailable, err)
	}
	if len(key) != KeySize {
		Zero(key)
		return nil, fmt.Errorf(
			"%w: KMS plaintext must be %d bytes, got %d", ErrMasterKeyUnavailable, KeySize, len(key),
		)
	}

	return &MasterKeyring{master: &MasterKey{ID: id, Key: key}}, nil
}
