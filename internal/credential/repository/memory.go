package repository

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"jobtrackr/backend/internal/credential/domain"
)

// MemoryRepository keeps credentials in process memory; used by tests and local development.
type MemoryRepository struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

// NewMemoryRepository returns an empty in-memory credential repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[string]*domain.Credential)}
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string) ([]*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Credential
	for _, c := range r.creds {
		if c.OwnerUserID == userID {
			out = append(out, clone(c))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Credential) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id []byte) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[string(id)]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (r *MemoryRepository) Insert(_ context.Context, c *domain.Credential) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creds[string(c.ID)]; ok {
		return false, nil
	}
	r.creds[string(c.ID)] = clone(c)
	return true, nil
}

func (r *MemoryRepository) UpdateCounter(_ context.Context, id []byte, next uint32, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[string(id)]
	if !ok || !c.CounterAccepted(next) {
		return false, nil
	}
	c.SignCount = next
	c.LastUsedAt = &usedAt
	return true, nil
}

func (r *MemoryRepository) DeleteOwned(_ context.Context, id []byte, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[string(id)]
	if !ok || c.OwnerUserID != userID {
		return false, nil
	}
	delete(r.creds, string(id))
	return true, nil
}

func clone(c *domain.Credential) *domain.Credential {
	cp := *c
	cp.ID = bytes.Clone(c.ID)
	cp.PublicKey = bytes.Clone(c.PublicKey)
	cp.Transports = slices.Clone(c.Transports)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}
