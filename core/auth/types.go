package auth

import (
	"strings"
	"time"

	"fintechx-ops/core/rbac"
)

type User struct {
	ID                string            `json:"id"`
	Username          string            `json:"username"`
	Email             string            `json:"email"`
	PasswordHash      string            `json:"-"`
	Salt              string            `json:"-"`
	Role              rbac.Role         `json:"role"`
	FirstName         string            `json:"first_name"`
	LastName          string            `json:"last_name"`
	CustomPermissions []rbac.Permission `json:"custom_permissions"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	Active            bool              `json:"active"`
	FailedAttempts    int               `json:"failed_login_attempts"`
	LockedUntil       *time.Time        `json:"locked_until,omitempty"`
	LastLoginAt       *time.Time        `json:"last_login,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (u *User) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return u.Username
}

func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateUserInput carries everything CreateUser needs. Role must be a known
// role label; an unknown one rejects the whole call.
type CreateUserInput struct {
	Username          string
	Email             string
	Password          string
	Role              rbac.Role
	FirstName         string
	LastName          string
	CustomPermissions []rbac.Permission
	Metadata          map[string]any
}

// UserUpdate is a typed partial update: nil fields are left unchanged.
type UserUpdate struct {
	Email             *string
	Role              *rbac.Role
	FirstName         *string
	LastName          *string
	CustomPermissions *[]rbac.Permission
	Metadata          map[string]any
}
