package security

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the length in bytes of each vault salt.
	SaltSize = 16
	// VerifyHashSize is the PBKDF2-SHA512 output length used for password verification.
	VerifyHashSize = 64
	// EncryptionKeySize is the PBKDF2-SHA256 output length used as the AES-256 key.
	EncryptionKeySize = 32
	// DefaultIterations is the PBKDF2 iteration count for both derivations.
	DefaultIterations = 100000
)

// PasswordHash derives the verify-only hash of password with PBKDF2-HMAC-SHA512.
// Callers must not log or persist plaintext passwords.
func PasswordHash(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, VerifyHashSize, sha512.New)
}

// EncryptionKey derives the AES-256 key of password with PBKDF2-HMAC-SHA256.
// The key is never stored; callers use it and drop it.
func EncryptionKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, EncryptionKeySize, sha256.New)
}

// HashEqual compares two derived values in constant time. Empty inputs never match.
func HashEqual(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
