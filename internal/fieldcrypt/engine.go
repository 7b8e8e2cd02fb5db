// Package fieldcrypt implements the field encryption engine: AEAD encryption of
// a declared subset of record fields, each field sealed independently into a
// self-describing envelope so a single corrupt field never poisons its siblings.
package fieldcrypt

import (
	keysDomain "github.com/clinicbase/phivault/internal/keys/domain"
	cryptoService "github.com/clinicbase/phivault/internal/keys/service"
)

// FieldErrors maps field names to their individual decryption failures.
type FieldErrors map[string]error

// Engine encrypts and decrypts record fields under a resolved data key.
type Engine interface {
	// EncryptFields replaces every sensitive field present and non-empty in
	// values with its envelope wire form. Fields outside the schema, or with
	// empty values, pass through untouched.
	EncryptFields(values map[string]string, schema Schema, key []byte, alg keysDomain.Algorithm) (map[string]string, error)

	// DecryptFields is the inverse. A failure on one field does not abort the
	// others: successfully decrypted fields are returned alongside a FieldErrors
	// map naming the failures. Callers that need the whole record intact treat a
	// non-empty FieldErrors as fatal; callers that tolerate partial data keep
	// what decrypted.
	DecryptFields(values map[string]string, schema Schema, key []byte, alg keysDomain.Algorithm) (map[string]string, FieldErrors)
}

type engine struct {
	wrapper cryptoService.KeyWrapper
}

// NewEngine creates a field encryption engine on top of the key wrapper.
func NewEngine(wrapper cryptoService.KeyWrapper) Engine {
	return &engine{wrapper: wrapper}
}

// EncryptFields seals each schema field with a fresh nonce and salt per field.
func (e *engine) EncryptFields(
	values map[string]string,
	schema Schema,
	key []byte,
	alg keysDomain.Algorithm,
) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for name, value := range values {
		out[name] = value
	}

	for _, field := range schema.Sensitive {
		value, ok := values[field]
		if !ok || value == "" {
			continue
		}

		env, err := e.wrapper.Seal([]byte(value), key, alg)
		if err != nil {
			return nil, err
		}
		out[field] = env.Encode()
	}

	return out, nil
}

// DecryptFields opens each schema field independently, collecting per-field failures.
func (e *engine) DecryptFields(
	values map[string]string,
	schema Schema,
	key []byte,
	alg keysDomain.Algorithm,
) (map[string]string, FieldErrors) {
	out := make(map[string]string, len(values))
	for name, value := range values {
		out[name] = value
	}

	failures := make(FieldErrors)
	for _, field := range schema.Sensitive {
		value, ok := values[field]
		if !ok || value == "" {
			continue
		}

		env, err := cryptoService.ParseEnvelope(value)
		if err != nil {
			failures[field] = err
			delete(out, field)
			continue
		}

		plaintext, err := e.wrapper.Open(env, key, alg)
		if err != nil {
			failures[field] = err
			delete(out, field)
			continue
		}
		out[field] = string(plaintext)
	}

	if len(failures) == 0 {
		return out, nil
	}
	return out, failures
}
