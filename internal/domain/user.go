package domain

import "time"

// Role gates write capabilities of a user.
type Role string

const (
	RoleManager  Role = "manager"
	RoleEngineer Role = "engineer"
	RoleObserver Role = "observer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleEngineer, RoleObserver:
		return true
	}
	return false
}

// AuthProvider represents an OAuth provider.
type AuthProvider string

const (
	AuthProviderGoogle AuthProvider = "google"
	AuthProviderGitHub AuthProvider = "github"
)

// User represents a registered user.
type User struct {
	ID           int64         `json:"id" db:"id"`
	Username     string        `json:"username" db:"username"`
	PasswordHash *string       `json:"-" db:"password_hash"`
	Role         Role          `json:"role" db:"role"`
	Provider     *AuthProvider `json:"provider,omitempty" db:"provider"`
	ProviderID   *string       `json:"-" db:"provider_id"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// Identity is the authenticated caller resolved from a session token.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// UserRef is the compact user shape embedded in other resources.
type UserRef struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
}
