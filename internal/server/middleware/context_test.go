package middleware

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-1", "session-1")

	userID, ok := GetUserID(ctx)
	if !ok || userID != "user-1" {
		t.Errorf("GetUserID = %q, %v; want user-1, true", userID, ok)
	}
	sessionID, ok := GetSessionID(ctx)
	if !ok || sessionID != "session-1" {
		t.Errorf("GetSessionID = %q, %v; want session-1, true", sessionID, ok)
	}
}

func TestGetUserID_ReturnsFalseWhenNotSet(t *testing.T) {
	if _, ok := GetUserID(context.Background()); ok {
		t.Error("GetUserID should return false on an empty context")
	}
	if _, ok := GetSessionID(context.Background()); ok {
		t.Error("GetSessionID should return false on an empty context")
	}
}

func TestWithIdentity_EmptyValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "", "")
	if _, ok := GetUserID(ctx); ok {
		t.Error("empty user id should not count as authenticated")
	}
}

func TestContext_Isolation(t *testing.T) {
	ctx1 := WithIdentity(context.Background(), "user-1", "session-1")
	ctx2 := WithIdentity(context.Background(), "user-2", "session-2")

	u1, _ := GetUserID(ctx1)
	u2, _ := GetUserID(ctx2)
	if u1 != "user-1" || u2 != "user-2" {
		t.Errorf("contexts leaked: %q, %q", u1, u2)
	}
}

func TestClientIPFromContext(t *testing.T) {
	if got := ClientIPFromContext(context.Background()); got != "unknown" {
		t.Errorf("ClientIPFromContext(empty) = %q, want unknown", got)
	}
	if got := ClientIPFromContext(WithClientIP(context.Background(), "10.0.0.1")); got != "10.0.0.1" {
		t.Errorf("ClientIPFromContext = %q, want 10.0.0.1", got)
	}
}
