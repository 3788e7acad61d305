package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobtrackr/backend/internal/credential/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a credential repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectCredential = `SELECT credential_id, user_id, public_key, sign_count, transports, device_type, display_name,
	aaguid, backup_eligible, backup_state, attestation_format, created_at, last_used_at FROM webauthn_credentials`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(s rowScanner) (*domain.Credential, error) {
	var (
		c          domain.Credential
		signCount  int64
		transports string
		deviceType string
		lastUsed   sql.NullTime
	)
	err := s.Scan(&c.ID, &c.OwnerUserID, &c.PublicKey, &signCount, &transports, &deviceType, &c.DisplayName,
		&c.AAGUID, &c.BackupEligible, &c.BackupState, &c.AttestationFormat, &c.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	c.SignCount = uint32(signCount)
	c.Transports = splitTransports(transports)
	c.DeviceType = domain.DeviceType(deviceType)
	if lastUsed.Valid {
		t := lastUsed.Time
		c.LastUsedAt = &t
	}
	return &c, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Credential, error) {
	rows, err := r.db.QueryContext(ctx, selectCredential+` WHERE user_id = $1 ORDER BY created_at ASC, credential_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id []byte) (*domain.Credential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx, selectCredential+` WHERE credential_id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, c *domain.Credential) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO webauthn_credentials (credential_id, user_id, public_key, sign_count, transports, device_type, display_name,
			aaguid, backup_eligible, backup_state, attestation_format, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (credential_id) DO NOTHING`,
		c.ID, c.OwnerUserID, c.PublicKey, int64(c.SignCount), strings.Join(c.Transports, ","), string(c.DeviceType), c.DisplayName,
		c.AAGUID, c.BackupEligible, c.BackupState, c.AttestationFormat, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// UpdateCounter is a compare-and-set on sign_count; two racing assertions with the same counter cannot both win.
func (r *PostgresRepository) UpdateCounter(ctx context.Context, id []byte, next uint32, usedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webauthn_credentials SET sign_count = $2, last_used_at = $3
		WHERE credential_id = $1 AND (sign_count = 0 OR sign_count < $2)`,
		id, int64(next), usedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) DeleteOwned(ctx context.Context, id []byte, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_credentials WHERE credential_id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func splitTransports(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
