package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrValidation wraps every validation failure so callers can map them to a
// 400 without inspecting messages.
var ErrValidation = errors.New("validation failed")

// User is the core credential record. PasswordHash is a bcrypt hash; the
// plaintext is never stored or returned.
type User struct {
	ID           string
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	Status       UserStatus
	LastLogin    *time.Time // nil until first successful login
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is the authorization tier, not authentication state.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
	RoleUser    Role = "user"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	// UserStatusInactive users are rejected at every authentication entry
	// point, regardless of otherwise valid credentials or tokens.
	UserStatusInactive UserStatus = "inactive"
)

// NormalizeRole maps the registration role value to an internal Role.
// "administrator" becomes admin; faculty stays faculty; anything else,
// including empty, defaults to the least-privileged student tier.
func NormalizeRole(requested string) Role {
	switch requested {
	case "administrator":
		return RoleAdmin
	case string(RoleFaculty):
		return RoleFaculty
	default:
		return RoleStudent
	}
}

var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if len(u.Name) < 2 || len(u.Name) > 100 {
		return fmt.Errorf("%w: name must be 2-100 characters", ErrValidation)
	}
	if !usernameRe.MatchString(u.Username) {
		return fmt.Errorf("%w: username must be 3-30 alphanumeric characters, _ or -", ErrValidation)
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("%w: password hash is required", ErrValidation)
	}
	if u.Role == "" {
		u.Role = RoleStudent
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}
