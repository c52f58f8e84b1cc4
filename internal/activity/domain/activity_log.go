package domain

import "time"

// ActivityLog is one append-only entry recording an auth event.
type ActivityLog struct {
	ID        string
	UserID    string
	Action    string // "register", "login", "logout"
	IP        string
	CreatedAt time.Time
}

// Actions recorded by the session protocol.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionLogout   = "logout"
)
