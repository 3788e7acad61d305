package repository

import (
	"context"
	"time"

	"jobtrackr/backend/internal/credential/domain"
)

// Repository defines persistence for WebAuthn credentials.
type Repository interface {
	// ListByUser returns the user's credentials ordered by creation time ascending.
	ListByUser(ctx context.Context, userID string) ([]*domain.Credential, error)
	// GetByID returns the credential for id, or nil if not found.
	GetByID(ctx context.Context, id []byte) (*domain.Credential, error)
	// Insert stores c unless its id exists. Reports whether a row was written.
	Insert(ctx context.Context, c *domain.Credential) (bool, error)
	// UpdateCounter sets sign count and last use only if the stored counter accepts next.
	// Reports whether a row was updated; false covers both a missing id and a rejected counter.
	UpdateCounter(ctx context.Context, id []byte, next uint32, usedAt time.Time) (bool, error)
	// DeleteOwned removes the credential only if userID owns it. Reports whether a row was removed.
	DeleteOwned(ctx context.Context, id []byte, userID string) (bool, error)
}
