// Package blindindex computes deterministic keyed hashes over searchable field
// values, enabling exact-match lookups on encrypted records without revealing
// plaintext to the database.
package blindindex

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	apperrors "github.com/clinicbase/phivault/internal/errors"
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
)

// ErrEmptyValue indicates a blind index was requested for an empty input.
var ErrEmptyValue = apperrors.Wrap(apperrors.ErrInvalidInput, "blind index value is empty")

// Indexer computes blind index hashes under a key derived from a data key.
type Indexer interface {
	// Compute returns the hex-encoded HMAC-SHA256 of the normalized value under
	// an index key derived from dataKey. Equal inputs under the same data key
	// always produce equal outputs.
	Compute(dataKey []byte, value string) (string, error)
}

type indexer struct{}

// NewIndexer creates a new blind index computer.
func NewIndexer() Indexer {
	return &indexer{}
}

// deriveIndexKey uses HKDF-SHA256 to derive a 32-byte index key from the data
// key. Separates search-index key usage from encryption key usage.
// Info parameter: "blind-index-v1" (versioned for future algorithm changes).
func (i *indexer) deriveIndexKey(dataKey []byte) ([]byte, error) {
	info := []byte("blind-index-v1")
	hkdf := hkdf.New(sha256.New, dataKey, nil, info)

	indexKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf, indexKey); err != nil {
		return nil, err
	}

	return indexKey, nil
}

// Compute normalizes the value (trim, lowercase) and returns its keyed hash.
// Normalization makes lookups case-insensitive: "Smith" and "smith" index to
// the same digest.
func (i *indexer) Compute(dataKey []byte, value string) (string, error) {
	if len(dataKey) != keysDomain.KeySize {
		return "", keysDomain.ErrInvalidKeySize
	}

	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "", ErrEmptyValue
	}

	indexKey, err := i.deriveIndexKey(dataKey)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to derive index key")
	}
	defer keysDomain.Zero(indexKey)

	mac := hmac.New(sha256.New, indexKey)
	mac.Write([]byte(normalized))

	return hex.EncodeToString(mac.Sum(nil)), nil
}
