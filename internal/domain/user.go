package domain

import "time"

// Role is the kind of account a user holds.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// User represents an account in the system.
type User struct {
	ID         string
	Name       string
	Username   string
	Email      string
	Role       Role
	IsOnline   bool
	IsBlocked  bool
	Location   *Point
	LastSeenAt *time.Time
	CreatedAt  time.Time
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID   string
	Username string
	Role     Role
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
