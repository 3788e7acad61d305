package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobtrackr/backend/internal/challenge/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a challenge repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webauthn_challenges (id, challenge, purpose, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Value, string(c.Purpose), nullString(c.ScopeUserID), c.IssuedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Take deletes the row and returns it in one statement, so a replayed handle finds nothing.
func (r *PostgresRepository) Take(ctx context.Context, id string) (*domain.Challenge, error) {
	var (
		c       domain.Challenge
		purpose string
		userID  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM webauthn_challenges WHERE id = $1 RETURNING id, challenge, purpose, user_id, issued_at, expires_at`,
		id).Scan(&c.ID, &c.Value, &purpose, &userID, &c.IssuedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	c.Purpose = domain.Purpose(purpose)
	c.ScopeUserID = userID.String
	return &c, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
