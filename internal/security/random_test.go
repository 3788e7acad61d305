package security

import (
	"encoding/base64"
	"testing"
)

func TestNewOpaqueHandle(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		h, err := NewOpaqueHandle()
		if err != nil {
			t.Fatalf("NewOpaqueHandle: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(h)
		if err != nil {
			t.Fatalf("handle not base64url: %v", err)
		}
		if len(raw) != HandleSize {
			t.Errorf("handle entropy = %d bytes, want %d", len(raw), HandleSize)
		}
		if seen[h] {
			t.Fatal("duplicate handle")
		}
		seen[h] = true
	}
}

func TestHashHandle(t *testing.T) {
	h := HashHandle("handle-1")
	if len(h) != 64 {
		t.Errorf("hash len = %d, want 64 hex chars", len(h))
	}
	if h != HashHandle("handle-1") {
		t.Error("HashHandle should be deterministic")
	}
	if h == HashHandle("handle-2") {
		t.Error("different handles should hash differently")
	}
}

func TestHandleHashEqual(t *testing.T) {
	stored := HashHandle("correct-handle")

	if !HandleHashEqual("correct-handle", stored) {
		t.Error("HandleHashEqual should match correct handle")
	}
	if HandleHashEqual("wrong-handle", stored) {
		t.Error("HandleHashEqual should reject incorrect handle")
	}
	if HandleHashEqual("correct-handle", "a"+stored) {
		t.Error("HandleHashEqual should reject hash with different length")
	}
	if HandleHashEqual("", "") {
		t.Error("HandleHashEqual should not match empty inputs")
	}
}
