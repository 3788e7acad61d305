package repository

import (
	"context"
	"time"

	"jobtrackr/backend/internal/vault/domain"
)

// Repository defines persistence for master secrets. Salts and iterations are written once by
// Create and never changed afterwards.
type Repository interface {
	// Get returns the user's master secret, or nil if none is configured.
	Get(ctx context.Context, userID string) (*domain.MasterSecret, error)
	// Create inserts s unless the user already has a record. It reports whether s was stored.
	Create(ctx context.Context, s *domain.MasterSecret) (bool, error)
	// UpdateHash replaces the password hash of an existing record. It reports false when the
	// user has no record.
	UpdateHash(ctx context.Context, userID string, hash []byte, updatedAt time.Time) (bool, error)
}
