package repository

import (
	"context"
	"errors"
	"time"

	"lazynotez/backend/internal/user/domain"
)

// ErrDuplicateUsername is returned by Create when the username is already
// taken. The unique index is the authority; a lookup before Create only
// narrows the race, it cannot close it.
var ErrDuplicateUsername = errors.New("username already exists")

// Repository defines persistence for users and their refresh-token sets.
//
// Lookups are fail-closed: callers must treat an error as "not authenticated",
// never as an implicit success.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// AddRefreshToken appends a refresh-token hash to the user's set.
	AddRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	// RemoveRefreshToken removes the hash from the user's set and reports
	// whether it was present. The remove must be atomic: when two callers
	// race on the same token, exactly one observes removed == true.
	RemoveRefreshToken(ctx context.Context, userID, tokenHash string) (removed bool, err error)
	// PurgeExpiredRefreshTokens deletes set entries whose tokens have passed
	// their natural expiry. Returns the number of rows removed.
	PurgeExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}
