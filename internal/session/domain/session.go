package domain

import "time"

// Session is an application session issued after a verified passkey authentication.
// It lives only inside the signed token; nothing is persisted.
type Session struct {
	ID           string
	UserID       string
	CredentialID string
	Token        string
	ExpiresAt    time.Time
}
