package service

import (
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// KeyWrapperService seals plaintext into envelopes and wraps key material under a
// parent key. It is the single place that knows how an AEAD's appended tag maps
// onto the envelope's separate ciphertext and tag segments.
type KeyWrapperService struct {
	aeadManager AEADManager
}

// NewKeyWrapper creates a new KeyWrapperService using the provided AEADManager.
func NewKeyWrapper(aeadManager AEADManager) *KeyWrapperService {
	return &KeyWrapperService{aeadManager: aeadManager}
}

// Seal encrypts plaintext under key with a fresh random nonce and a fresh random
// salt, splitting the AEAD output into the envelope's ciphertext and tag segments.
func (w *KeyWrapperService) Seal(
	plaintext, key []byte,
	alg cryptoDomain.Algorithm,
) (*Envelope, error) {
	aead, err := w.aeadManager.CreateCipher(key, alg)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	sealed, nonce, err := aead.Encrypt(plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	if len(sealed) < TagSize {
		return nil, fmt.Errorf("sealed output shorter than tag size")
	}

	return &Envelope{
		Nonce:      nonce,
		Salt:       salt,
		Ciphertext: sealed[:len(sealed)-TagSize],
		Tag:        sealed[len(sealed)-TagSize:],
	}, nil
}

// Open verifies and decrypts an envelope under key. Authentication failures and
// wrong keys surface as ErrDecryptionFailed without further detail.
func (w *KeyWrapperService) Open(
	env *Envelope,
	key []byte,
	alg cryptoDomain.Algorithm,
) ([]byte, error) {
	aead, err := w.aeadManager.CreateCipher(key, alg)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aead.Decrypt(sealed, env.Nonce, nil)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	return plaintext, nil
}

// Wrap encrypts raw key material under a parent key and returns the encoded envelope.
func (w *KeyWrapperService) Wrap(
	material, parentKey []byte,
	alg cryptoDomain.Algorithm,
) (string, error) {
	env, err := w.Seal(material, parentKey, alg)
	if err != nil {
		return "", err
	}
	return env.Encode(), nil
}

// Unwrap decodes and decrypts wrapped key material under a parent key.
func (w *KeyWrapperService) Unwrap(
	wrapped string,
	parentKey []byte,
	alg cryptoDomain.Algorithm,
) ([]byte, error) {
	env, err := ParseEnvelope(wrapped)
	if err != nil {
		return nil, err
	}
	return w.Open(env, parentKey, alg)
}

// GenerateKeyMaterial returns fresh random key material of the standard key size.
func GenerateKeyMaterial() ([]byte, error) {
	material := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}
	return material, nil
}
