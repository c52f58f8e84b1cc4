package repository

import (
	"context"
	"database/sql"

	"lazynotez/backend/internal/activity/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an activity-log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one activity-log entry.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.ActivityLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_logs (id, user_id, action, ip, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserID, e.Action,
		sql.NullString{String: e.IP, Valid: e.IP != ""},
		e.CreatedAt)
	return err
}

// ListByUser returns the most recent entries for a user, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int32) ([]*domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, action, ip, created_at
		 FROM activity_logs WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ActivityLog
	for rows.Next() {
		var (
			e  domain.ActivityLog
			ip sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		if ip.Valid {
			e.IP = ip.String
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
