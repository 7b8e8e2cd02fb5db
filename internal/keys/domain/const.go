package domain

// Algorithm represents the AEAD cipher used to protect key material and record fields.
//
// Both supported algorithms provide authenticated encryption with associated data,
// ensuring confidentiality and tamper detection via an authentication tag.
type Algorithm string

const (
	// AESGCM is AES-256-GCM: 32-byte key, 12-byte nonce, 16-byte authentication tag.
	// Preferred on CPUs with AES-NI hardware acceleration.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305: 32-byte key, 12-byte nonce, 16-byte tag.
	// Constant-time in software; preferred on platforms without AES acceleration.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// KeySize is the required key length in bytes for every tier of the hierarchy.
const KeySize = 32

// KeyType identifies a tier in the key hierarchy.
type KeyType string

const (
	KeyTypeMaster       KeyType = "master"
	KeyTypeOrganization KeyType = "organization"
	KeyTypeData         KeyType = "data"
)

// KeyStatus tracks the lifecycle of a stored key.
//
// Deprecated keys remain valid for decrypting already-written records until the
// records are re-encrypted; retired keys are no longer usable at all.
type KeyStatus string

const (
	KeyStatusActive     KeyStatus = "active"
	KeyStatusDeprecated KeyStatus = "deprecated"
	KeyStatusRetired    KeyStatus = "retired"
)
