package domain

import "time"

// AuditLog represents a security-relevant event. UserID is empty for events on public
// endpoints where no user was established (e.g. a rejected authentication).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
