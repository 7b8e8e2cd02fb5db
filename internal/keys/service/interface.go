// Package service provides the cryptographic primitives for the key hierarchy:
// AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305), the field-ciphertext envelope
// codec, and key wrapping/unwrapping under a parent key.
package service

import (
	cryptoDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext
	// (authentication tag appended) and the generated nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyWrapper seals and opens envelopes and wraps key material under a parent key.
type KeyWrapper interface {
	// Seal encrypts plaintext under key and returns a self-describing envelope.
	Seal(plaintext, key []byte, alg cryptoDomain.Algorithm) (*Envelope, error)

	// Open decrypts an envelope under key, verifying the authentication tag.
	Open(env *Envelope, key []byte, alg cryptoDomain.Algorithm) ([]byte, error)

	// Wrap encrypts raw key material under a parent key, returning the encoded envelope.
	Wrap(material, parentKey []byte, alg cryptoDomain.Algorithm) (string, error)

	// Unwrap decodes and decrypts wrapped key material under a parent key.
	Unwrap(wrapped string, parentKey []byte, alg cryptoDomain.Algorithm) ([]byte, error)
}
