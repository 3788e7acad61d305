// Package challenge issues and consumes single-use WebAuthn challenges.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobtrackr/backend/internal/challenge/domain"
	"jobtrackr/backend/internal/challenge/repository"
	"jobtrackr/backend/internal/security"
)

// DefaultTTL is the lifetime of registration and authentication challenges.
const DefaultTTL = 5 * time.Minute

var (
	// ErrChallengeNotFound covers both a challenge that was already consumed and one that timed out.
	ErrChallengeNotFound = errors.New("challenge not found or expired")
	// ErrInvalidPurpose is returned by Issue for an unknown purpose.
	ErrInvalidPurpose = errors.New("invalid challenge purpose")
)

// Issued pairs a stored challenge with the opaque handle the client must present to consume it.
type Issued struct {
	Handle    string
	Challenge *domain.Challenge
}

// Store issues challenges and consumes them exactly once.
type Store struct {
	repo repository.Repository
	ttl  time.Duration
	now  func() time.Time
}

// NewStore returns a Store persisting to repo. ttl <= 0 uses DefaultTTL.
func NewStore(repo repository.Repository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{repo: repo, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// TTL returns the challenge lifetime; cookies carrying handles use the same value.
func (s *Store) TTL() time.Duration { return s.ttl }

// Issue creates a challenge of 32 random bytes for purpose, optionally scoped to scopeUserID.
// Only the hash of the returned handle is stored.
func (s *Store) Issue(ctx context.Context, purpose domain.Purpose, scopeUserID string) (*Issued, error) {
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	value, err := security.RandomBytes(security.HandleSize)
	if err != nil {
		return nil, err
	}
	handle, err := security.NewOpaqueHandle()
	if err != nil {
		return nil, err
	}
	now := s.now()
	c := &domain.Challenge{
		ID:          security.HashHandle(handle),
		Value:       value,
		Purpose:     purpose,
		ScopeUserID: scopeUserID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return &Issued{Handle: handle, Challenge: c}, nil
}

// Consume removes the challenge for handle and returns it. Every call is destructive:
// the record is gone afterwards whether or not the caller accepts the ceremony.
// Returns ErrChallengeNotFound if the handle is unknown, already used, or expired.
func (s *Store) Consume(ctx context.Context, handle string) (*domain.Challenge, error) {
	if handle == "" {
		return nil, ErrChallengeNotFound
	}
	c, err := s.repo.Take(ctx, security.HashHandle(handle))
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	if c == nil || c.Expired(s.now()) {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// Sweep deletes expired challenges that were never consumed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// RunSweeper calls Sweep every interval until ctx is done. Errors are passed to onErr when non-nil.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
