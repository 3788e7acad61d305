package repository

import (
	"context"
	"sync"
	"time"

	"jobtrackr/backend/internal/vault/domain"
)

// MemoryRepository keeps master secrets in a map. It follows the same create-once rules as postgres.
type MemoryRepository struct {
	mu      sync.RWMutex
	secrets map[string]*domain.MasterSecret
}

// NewMemoryRepository returns an empty in-memory master secret repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{secrets: make(map[string]*domain.MasterSecret)}
}

func (r *MemoryRepository) Get(_ context.Context, userID string) (*domain.MasterSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.secrets[userID]
	if !ok {
		return nil, nil
	}
	return clone(s), nil
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.MasterSecret) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.secrets[s.UserID]; ok {
		return false, nil
	}
	r.secrets[s.UserID] = clone(s)
	return true, nil
}

func (r *MemoryRepository) UpdateHash(_ context.Context, userID string, hash []byte, updatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.secrets[userID]
	if !ok {
		return false, nil
	}
	existing.PasswordHash = append([]byte(nil), hash...)
	existing.UpdatedAt = updatedAt
	return true, nil
}

func clone(s *domain.MasterSecret) *domain.MasterSecret {
	cp := *s
	cp.PasswordHash = append([]byte(nil), s.PasswordHash...)
	cp.PasswordSalt = append([]byte(nil), s.PasswordSalt...)
	cp.KeyDerivationSalt = append([]byte(nil), s.KeyDerivationSalt...)
	return &cp
}
