// Package activity records register/login/logout events. Recording is
// best-effort: a failed write is logged and never fails the auth flow that
// triggered it.
package activity

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"lazynotez/backend/internal/activity/domain"
	activityrepo "lazynotez/backend/internal/activity/repository"
)

// Recorder writes a single activity entry. Implemented by Logger; the auth
// service depends on this interface so tests can capture entries in memory.
type Recorder interface {
	Record(ctx context.Context, userID, action, ip string)
}

// Logger implements Recorder using the activity repository.
type Logger struct {
	repo activityrepo.Repository
}

// NewLogger returns a Recorder that persists to repo. repo may be nil; then
// Record is a no-op.
func NewLogger(repo activityrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// Record writes one activity-log entry. Errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, userID, action, ip string) {
	if l.repo == nil {
		return
	}
	entry := &domain.ActivityLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		IP:        ip,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("activity: failed to record %s for user %s: %v", action, userID, err)
	}
}
