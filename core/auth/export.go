package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"fintechx-ops/core/rbac"
)

// userRecord is the wire form of a user: ISO-8601 timestamps, enum values
// as their string labels, sensitive material included so a round-trip keeps
// credentials verifiable.
type userRecord struct {
	ID                string         `json:"id"`
	Username          string         `json:"username"`
	Email             string         `json:"email"`
	PasswordHash      string         `json:"password_hash"`
	Salt              string         `json:"salt"`
	Role              string         `json:"role"`
	FirstName         string         `json:"first_name"`
	LastName          string         `json:"last_name"`
	CustomPermissions []string       `json:"custom_permissions"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Active            bool           `json:"active"`
	FailedAttempts    int            `json:"failed_login_attempts"`
	LockedUntil       *time.Time     `json:"locked_until,omitempty"`
	LastLogin         *time.Time     `json:"last_login,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (a *Authority) ExportUsers(w io.Writer) error {
	users := a.ListUsers()
	records := make([]userRecord, 0, len(users))
	for _, u := range users {
		perms := make([]string, 0, len(u.CustomPermissions))
		for _, p := range u.CustomPermissions {
			perms = append(perms, string(p))
		}
		records = append(records, userRecord{
			ID:                u.ID,
			Username:          u.Username,
			Email:             u.Email,
			PasswordHash:      u.PasswordHash,
			Salt:              u.Salt,
			Role:              string(u.Role),
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			CustomPermissions: perms,
			Metadata:          u.Metadata,
			Active:            u.Active,
			FailedAttempts:    u.FailedAttempts,
			LockedUntil:       u.LockedUntil,
			LastLogin:         u.LastLoginAt,
			CreatedAt:         u.CreatedAt,
			UpdatedAt:         u.UpdatedAt,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// ImportUsers loads user records from JSON. A bad record (unknown role
// label, missing identity, uniqueness collision with a different user) is
// logged and skipped; the rest of the import proceeds. Returns the number
// of users imported.
func (a *Authority) ImportUsers(r io.Reader) (int, error) {
	var records []userRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, err
	}
	imported := 0
	for i, rec := range records {
		if err := a.importRecord(rec); err != nil {
			if a.logger != nil {
				a.logger.Errorf("skipping user record %d (%s): %v", i, rec.Username, err)
			}
			continue
		}
		imported++
	}
	if a.logger != nil {
		a.logger.Printf("imported %d of %d user records", imported, len(records))
	}
	return imported, nil
}

func (a *Authority) importRecord(rec userRecord) error {
	if rec.ID == "" || rec.Username == "" || rec.Email == "" {
		return fmt.Errorf("missing id, username, or email")
	}
	role, err := rbac.ParseRole(rec.Role)
	if err != nil {
		return err
	}
	ph, err := ParsePasswordHash(rec.PasswordHash, rec.Salt)
	if err != nil {
		return err
	}
	valid, invalid := rbac.NormalizePermissionNames(rec.CustomPermissions)
	if len(invalid) > 0 && a.logger != nil {
		a.logger.Errorf("user %s: dropping unknown permissions %v", rec.Username, invalid)
	}
	perms := make([]rbac.Permission, 0, len(valid))
	for _, p := range valid {
		perms = append(perms, rbac.Permission(p))
	}

	a.mu.Lock()
	if existing := a.findByUsernameLocked(rec.Username); existing != nil && existing.ID != rec.ID {
		a.mu.Unlock()
		return fmt.Errorf("username collides with existing user %s", existing.ID)
	}
	if existing := a.findByEmailLocked(rec.Email); existing != nil && existing.ID != rec.ID {
		a.mu.Unlock()
		return fmt.Errorf("email collides with existing user %s", existing.ID)
	}
	a.users[rec.ID] = &User{
		ID:                rec.ID,
		Username:          rec.Username,
		Email:             rec.Email,
		PasswordHash:      ph.Hash,
		Salt:              ph.Salt,
		Role:              role,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		CustomPermissions: perms,
		Metadata:          cloneMetadata(rec.Metadata),
		Active:            rec.Active,
		FailedAttempts:    rec.FailedAttempts,
		LockedUntil:       rec.LockedUntil,
		LastLoginAt:       rec.LastLogin,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	a.mu.Unlock()

	a.syncPolicy(rec.ID, role, perms)
	return nil
}
