package repository

import (
	"context"
	"time"

	"jobtrackr/backend/internal/challenge/domain"
)

// Repository defines persistence for WebAuthn challenges.
type Repository interface {
	// Create persists the challenge. The challenge must have ID set.
	Create(ctx context.Context, c *domain.Challenge) error
	// Take atomically removes and returns the challenge for id, or nil if absent.
	// Of two concurrent callers for the same id at most one receives the challenge.
	// Expired challenges are still removed and returned; the caller checks expiry.
	Take(ctx context.Context, id string) (*domain.Challenge, error)
	// DeleteExpired removes challenges that expired before now and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
