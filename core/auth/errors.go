package auth

import "errors"

// ErrInvalidCredentials deliberately covers both a missing user and a wrong
// password so callers cannot enumerate accounts. The audit log keeps the
// distinction.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
	ErrUserLocked         = errors.New("user is locked")
	ErrDuplicateUser      = errors.New("username or email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)
