package repository

import (
	"context"

	"jobtrackr/backend/internal/audit/domain"
)

// Repository persists audit logs. The table is append-only from this service.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
}
