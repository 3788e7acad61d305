// Package credential is the durable registry of users' passkeys.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobtrackr/backend/internal/credential/domain"
	"jobtrackr/backend/internal/credential/repository"
)

var (
	// ErrNotFound is returned when no credential has the given id.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicateCredential is returned when inserting an id that is already registered.
	ErrDuplicateCredential = errors.New("credential already registered")
	// ErrCounterRegression signals a possibly cloned authenticator: the presented counter
	// did not exceed the stored one. The authentication must be rejected.
	ErrCounterRegression = errors.New("signature counter did not increase")
	// ErrForbidden is returned when a user tries to delete a credential they do not own.
	ErrForbidden = errors.New("credential not owned by user")
)

// Registry manages credentials on top of a Repository.
type Registry struct {
	repo repository.Repository
	now  func() time.Time
}

// NewRegistry returns a Registry backed by repo.
func NewRegistry(repo repository.Repository) *Registry {
	return &Registry{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// ListForUser returns the user's credentials, oldest first.
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*domain.Credential, error) {
	return r.repo.ListByUser(ctx, userID)
}

// ExclusionList returns descriptors for every credential the user already registered, in creation order.
func (r *Registry) ExclusionList(ctx context.Context, userID string) ([]domain.Descriptor, error) {
	creds, err := r.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Descriptor, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Descriptor())
	}
	return out, nil
}

// AllowList restricts an authentication to userID's credentials.
// With no user it returns nil so the client falls back to discoverable credentials.
func (r *Registry) AllowList(ctx context.Context, userID string) ([]domain.Descriptor, error) {
	if userID == "" {
		return nil, nil
	}
	return r.ExclusionList(ctx, userID)
}

// Insert registers c for its owner. CreatedAt is set when zero.
func (r *Registry) Insert(ctx context.Context, c *domain.Credential) (*domain.Credential, error) {
	if len(c.ID) == 0 || c.OwnerUserID == "" || len(c.PublicKey) == 0 {
		return nil, errors.New("credential id, owner and public key are required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	if c.DeviceType == "" {
		c.DeviceType = domain.DeviceTypeSingle
	}
	ok, err := r.repo.Insert(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateCredential
	}
	return c, nil
}

// Touch records a successful use with the authenticator's new counter.
// Returns ErrCounterRegression when next does not exceed a non-zero stored counter.
func (r *Registry) Touch(ctx context.Context, id []byte, next uint32) error {
	ok, err := r.repo.UpdateCounter(ctx, id, next, r.now())
	if err != nil {
		return fmt.Errorf("update counter: %w", err)
	}
	if ok {
		return nil
	}
	c, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	return ErrCounterRegression
}

// FindByCredentialID returns the credential or ErrNotFound.
func (r *Registry) FindByCredentialID(ctx context.Context, id []byte) (*domain.Credential, error) {
	c, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// Delete removes the credential if requestingUserID owns it.
// ErrForbidden hides whether the credential exists under another user.
func (r *Registry) Delete(ctx context.Context, id []byte, requestingUserID string) error {
	ok, err := r.repo.DeleteOwned(ctx, id, requestingUserID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
