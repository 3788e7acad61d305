package domain

import (
	"encoding/base64"
	"time"
)

// Purpose is the ceremony a challenge was issued for.
type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeRegistration || p == PurposeAuthentication
}

// Challenge is a single-use WebAuthn challenge (stored in webauthn_challenges).
// ID is the hex SHA-256 of the opaque handle given to the client.
type Challenge struct {
	ID          string
	Value       []byte
	Purpose     Purpose
	ScopeUserID string // empty when the user was not known at issuance
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Encoded returns the challenge value as sent to the client (base64url, no padding).
func (c *Challenge) Encoded() string {
	return base64.RawURLEncoding.EncodeToString(c.Value)
}

// Expired reports whether the challenge is no longer usable at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
