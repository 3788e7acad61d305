package telemetry

import (
	"context"
	"time"
)

// Event types emitted by the auth core.
const (
	EventRegistrationVerified   = "passkey.registration.verified"
	EventRegistrationRejected   = "passkey.registration.rejected"
	EventAuthenticationVerified = "passkey.authentication.verified"
	EventAuthenticationRejected = "passkey.authentication.rejected"
	EventCounterRegression      = "passkey.counter_regression"
	EventCredentialDeleted      = "passkey.credential.deleted"
	EventMasterPasswordSetup    = "vault.master_password.setup"
	EventMasterPasswordVerified = "vault.master_password.verified"
	EventMasterPasswordRejected = "vault.master_password.rejected"
)

// Event is a security event. Reason carries the internal rejection label and never reaches clients.
type Event struct {
	UserID       string
	CredentialID string
	EventType    string
	Source       string
	Reason       string
	Metadata     []byte // JSON
	CreatedAt    time.Time
}

// EventEmitter emits security events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
