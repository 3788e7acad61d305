package security

import (
	"bytes"
	"testing"
)

// Low iteration count keeps tests fast; production uses DefaultIterations.
const testIterations = 1000

func TestPasswordHash_Deterministic(t *testing.T) {
	salt := bytes.Repeat([]byte{0x01}, SaltSize)
	a := PasswordHash([]byte("a-strong-password-123"), salt, testIterations)
	b := PasswordHash([]byte("a-strong-password-123"), salt, testIterations)
	if len(a) != VerifyHashSize {
		t.Fatalf("len = %d, want %d", len(a), VerifyHashSize)
	}
	if !HashEqual(a, b) {
		t.Error("same password and salt should produce the same hash")
	}
}

func TestPasswordHash_SaltMatters(t *testing.T) {
	pw := []byte("a-strong-password-123")
	a := PasswordHash(pw, bytes.Repeat([]byte{0x01}, SaltSize), testIterations)
	b := PasswordHash(pw, bytes.Repeat([]byte{0x02}, SaltSize), testIterations)
	if HashEqual(a, b) {
		t.Error("different salts should produce different hashes")
	}
}

func TestEncryptionKey_IndependentOfVerifyHash(t *testing.T) {
	pw := []byte("a-strong-password-123")
	salt := bytes.Repeat([]byte{0x07}, SaltSize)
	key := EncryptionKey(pw, salt, testIterations)
	if len(key) != EncryptionKeySize {
		t.Fatalf("len = %d, want %d", len(key), EncryptionKeySize)
	}
	hash := PasswordHash(pw, salt, testIterations)
	if bytes.HasPrefix(hash, key) {
		t.Error("encryption key must not be a prefix of the verify hash")
	}
}

func TestHashEqual(t *testing.T) {
	if HashEqual(nil, nil) {
		t.Error("empty inputs should not match")
	}
	if HashEqual([]byte{1, 2}, []byte{1, 2, 3}) {
		t.Error("different lengths should not match")
	}
	if !HashEqual([]byte{1, 2, 3}, []byte{1, 2, 3}) {
		t.Error("equal inputs should match")
	}
}
