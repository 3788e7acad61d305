package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrackr/backend/internal/audit/domain"
)

func TestPostgresRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs("a1", nil, "authentication_rejected", "passkey", "10.0.0.1", "counter_regression", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresRepository(db).Create(context.Background(), &domain.AuditLog{
		ID: "a1", Action: "authentication_rejected", Resource: "passkey", IP: "10.0.0.1",
		Metadata: "counter_regression", CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnError(errors.New("connection reset"))

	err = NewPostgresRepository(db).Create(context.Background(), &domain.AuditLog{ID: "a1"})
	assert.ErrorContains(t, err, "db error")
}
