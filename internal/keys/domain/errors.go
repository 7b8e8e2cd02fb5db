package domain

import (
	"github.com/clinicbase/phivault/internal/errors"
)

// Key-management error definitions.
//
// These domain-specific errors wrap standard errors from internal/errors so that
// callers can branch on intent (errors.Is against the standard sentinels) without
// depending on this package's concrete values.
var (
	// ErrKeyNotFound indicates the referenced key_id has no active or deprecated row.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "encryption key not found")

	// ErrMasterKeyUnavailable indicates the environment-provided master key is
	// absent or has the wrong length. This is a fatal configuration error, not a
	// runtime-recoverable one.
	ErrMasterKeyUnavailable = errors.Wrap(errors.ErrConfiguration, "master key unavailable")

	// ErrInvalidKeySize indicates key material is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrUnsupportedAlgorithm indicates the requested AEAD algorithm is unknown.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrDecryptionFailed indicates an unwrap operation failed: wrong key,
	// tampered ciphertext, or a corrupted envelope. The specific cause is not
	// disclosed to avoid information leakage.
	ErrDecryptionFailed = errors.Wrap(errors.ErrInvalidInput, "decryption failed")

	// ErrActiveKeyExists indicates a second active key would be created for the
	// same (organization, data type, key type) tuple.
	ErrActiveKeyExists = errors.Wrap(errors.ErrConflict, "active key already exists")

	// ErrKeyRetired indicates a decrypt was attempted with a key whose grace
	// period has ended. Data under a retired key must be re-encrypted before use.
	ErrKeyRetired = errors.Wrap(errors.ErrInvalidInput, "encryption key retired")
)
