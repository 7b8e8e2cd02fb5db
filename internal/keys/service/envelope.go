package service

import (
	"encoding/hex"
	"fmt"
	"strings"

	apperrors "github.com/clinicbase/phivault/internal/errors"
	cryptoDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

const (
	// SaltSize is the length of the random salt carried in every envelope. The
	// salt is not consumed by the cipher today; it is reserved for future key
	// derivation without an envelope format change.
	SaltSize = 64

	// TagSize is the AEAD authentication tag length for both supported ciphers.
	TagSize = 16
)

// ErrMalformedEnvelope indicates a ciphertext envelope that does not have exactly
// four segments or whose fixed-length segments have the wrong size. It matches
// ErrDecryptionFailed via errors.Is.
var ErrMalformedEnvelope = apperrors.Wrap(cryptoDomain.ErrDecryptionFailed, "malformed envelope")

// Envelope is the self-describing ciphertext container stored for every encrypted
// field and wrapped key.
//
// Wire format: four colon-separated hex segments, nonce:salt:ciphertext:tag.
// The nonce length is cipher-dependent (12 bytes for both supported AEADs), the
// salt is SaltSize bytes and the tag TagSize bytes.
type Envelope struct {
	Nonce      []byte
	Salt       []byte
	Ciphertext []byte
	Tag        []byte
}

// Encode serializes the envelope to its wire form.
func (e *Envelope) Encode() string {
	return fmt.Sprintf(
		"%s:%s:%s:%s",
		hex.EncodeToString(e.Nonce),
		hex.EncodeToString(e.Salt),
		hex.EncodeToString(e.Ciphertext),
		hex.EncodeToString(e.Tag),
	)
}

// ParseEnvelope parses and validates the wire form of an envelope.
// Any deviation from exactly four segments, non-hex content, or wrong
// fixed-length segment sizes returns ErrMalformedEnvelope.
func ParseEnvelope(s string) (*Envelope, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return nil, apperrors.Wrapf(ErrMalformedEnvelope, "expected 4 segments, got %d", len(parts))
	}

	segments := make([][]byte, 4)
	for i, part := range parts {
		decoded, err := hex.DecodeString(part)
		if err != nil {
			return nil, apperrors.Wrapf(ErrMalformedEnvelope, "segment %d is not valid hex", i)
		}
		segments[i] = decoded
	}

	env := &Envelope{
		Nonce:      segments[0],
		Salt:       segments[1],
		Ciphertext: segments[2],
		Tag:        segments[3],
	}

	if len(env.Nonce) == 0 {
		return nil, apperrors.Wrap(ErrMalformedEnvelope, "empty nonce")
	}
	if len(env.Salt) != SaltSize {
		return nil, apperrors.Wrapf(ErrMalformedEnvelope, "salt must be %d bytes, got %d", SaltSize, len(env.Salt))
	}
	if len(env.Ciphertext) == 0 {
		return nil, apperrors.Wrap(ErrMalformedEnvelope, "empty ciphertext")
	}
	if len(env.Tag) != TagSize {
		return nil, apperrors.Wrapf(ErrMalformedEnvelope, "tag must be %d bytes, got %d", TagSize, len(env.Tag))
	}

	return env, nil
}
