package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobtrackr/backend/internal/vault/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a master secret repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.MasterSecret, error) {
	var s domain.MasterSecret
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, password_hash, password_salt, key_derivation_salt, iterations, created_at, updated_at
		 FROM master_secrets WHERE user_id = $1`, userID).
		Scan(&s.UserID, &s.PasswordHash, &s.PasswordSalt, &s.KeyDerivationSalt, &s.Iterations, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *domain.MasterSecret) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO master_secrets (user_id, password_hash, password_salt, key_derivation_salt, iterations, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO NOTHING`,
		s.UserID, s.PasswordHash, s.PasswordSalt, s.KeyDerivationSalt, s.Iterations, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func (r *PostgresRepository) UpdateHash(ctx context.Context, userID string, hash []byte, updatedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE master_secrets SET password_hash = $2, updated_at = $3 WHERE user_id = $1`,
		userID, hash, updatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}
