package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"jobtrackr/backend/internal/challenge/domain"
)

// MemoryRepository holds challenges in process memory. Single-instance development and tests only.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.Challenge)}
}

func (r *MemoryRepository) Create(_ context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[c.ID]; ok {
		return errors.New("challenge id already exists")
	}
	r.m[c.ID] = *c
	return nil
}

func (r *MemoryRepository) Take(_ context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	delete(r.m, id)
	return &c, nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.m {
		if c.Expired(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored challenges.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
