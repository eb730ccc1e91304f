package crypto

import "errors"

// Errors returned by this package. They are intentionally coarse: callers
// get enough information to react (bad input vs. bad key material) without
// the primitives leaking *which* internal step failed, per spec §4.1.
var (
	// ErrBadInput is returned for malformed hex/base64/PEM input.
	ErrBadInput = errors.New("crypto: malformed input")
	// ErrKeyMaterial is returned when a PEM-encoded key is missing or malformed.
	ErrKeyMaterial = errors.New("crypto: invalid or missing key material")
	// ErrDecryptFailed is returned when AEAD authentication fails (tampered ciphertext).
	ErrDecryptFailed = errors.New("crypto: decryption failed")
)
