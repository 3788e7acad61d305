package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// HandleSize is the entropy in bytes of opaque handles and WebAuthn challenges.
const HandleSize = 32

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewOpaqueHandle returns a random base64url (unpadded) handle suitable for a cookie value.
func NewOpaqueHandle() (string, error) {
	b, err := RandomBytes(HandleSize)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashHandle returns a SHA-256 hash of the handle, hex-encoded.
// Only this value is stored server-side; the raw handle lives in the client cookie.
func HashHandle(handle string) string {
	h := sha256.Sum256([]byte(handle))
	return hex.EncodeToString(h[:])
}

// HandleHashEqual performs constant-time comparison of the provided handle's hash
// with the stored hash. Empty handles never match.
func HandleHashEqual(providedHandle, storedHash string) bool {
	if providedHandle == "" {
		return false
	}
	providedHash := HashHandle(providedHandle)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
