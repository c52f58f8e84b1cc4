package repository

import (
	"context"

	"lazynotez/backend/internal/activity/domain"
)

// Repository defines persistence for activity-log entries. The table is
// append-only; entries are never updated or deleted by the application.
type Repository interface {
	Create(ctx context.Context, e *domain.ActivityLog) error
	ListByUser(ctx context.Context, userID string, limit int32) ([]*domain.ActivityLog, error)
}
