package repository

import (
	"context"

	"course-admin/backend/internal/audit/domain"
)

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByUser returns the newest entries for userID first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuditLog, error)
}
