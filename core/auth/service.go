package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"fintechx-ops/config"
	"fintechx-ops/core/rbac"
	"fintechx-ops/core/utils"
)

// AuditSink receives the full detail of security-sensitive events. The
// errors returned to callers stay deliberately vague; this is where the
// truth goes.
type AuditSink interface {
	Log(ctx context.Context, actor, action, details string) error
}

// Authority owns the user and session tables. All public methods are safe
// for concurrent use; the failed-attempt counter and lockout timestamp are
// only ever mutated under the write lock so two racing logins cannot both
// slip past the threshold.
type Authority struct {
	cfg    config.AuthConfig
	pepper string
	policy *rbac.Policy
	audits AuditSink
	logger *utils.Logger
	now    func() time.Time

	mu       sync.RWMutex
	users    map[string]*User
	sessions map[string]*Session
}

func NewAuthority(cfg config.AuthConfig, pepper string, policy *rbac.Policy, audits AuditSink, logger *utils.Logger) *Authority {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 8 * time.Hour
	}
	return &Authority{
		cfg:      cfg,
		pepper:   pepper,
		policy:   policy,
		audits:   audits,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		users:    map[string]*User{},
		sessions: map[string]*Session{},
	}
}

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}

func (a *Authority) CreateUser(ctx context.Context, in CreateUserInput) (string, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := utils.ValidateUsername(username); err != nil {
		return "", err
	}
	if err := utils.ValidateEmail(email); err != nil {
		return "", err
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return "", err
	}
	role, err := rbac.ParseRole(string(in.Role))
	if err != nil {
		return "", err
	}
	ph, err := HashPassword(in.Password, a.pepper)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	if a.findByUsernameLocked(username) != nil || a.findByEmailLocked(email) != nil {
		a.mu.Unlock()
		a.logAudit(ctx, username, "auth.user.create_rejected", "duplicate username or email")
		return "", ErrDuplicateUser
	}
	now := a.now()
	u := &User{
		ID:                newID(),
		Username:          username,
		Email:             email,
		PasswordHash:      ph.Hash,
		Salt:              ph.Salt,
		Role:              role,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		CustomPermissions: dedupePermissions(in.CustomPermissions),
		Metadata:          cloneMetadata(in.Metadata),
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	a.users[u.ID] = u
	a.mu.Unlock()

	a.syncPolicy(u.ID, role, u.CustomPermissions)
	a.logAudit(ctx, username, "auth.user.create", "id="+u.ID+" role="+string(role))
	a.logger.Printf("created user %s (%s)", u.ID, username)
	return u.ID, nil
}

// Authenticate verifies credentials and issues a session. The expensive key
// derivation runs outside the lock; the lockout state is re-checked under
// the write lock before a session is granted.
func (a *Authority) Authenticate(ctx context.Context, username, password string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	a.mu.RLock()
	u := a.findByUsernameLocked(username)
	if u == nil {
		a.mu.RUnlock()
		a.logAudit(ctx, username, "auth.login_failed", "unknown user")
		return "", ErrInvalidCredentials
	}
	if !u.Active {
		a.mu.RUnlock()
		a.logAudit(ctx, username, "auth.login_failed", "inactive user")
		return "", ErrUserInactive
	}
	if u.IsLocked(a.now()) {
		a.mu.RUnlock()
		a.logAudit(ctx, username, "auth.login_blocked", "locked user")
		return "", ErrUserLocked
	}
	userID := u.ID
	stored := &PasswordHash{Hash: u.PasswordHash, Salt: u.Salt}
	a.mu.RUnlock()

	ok, err := VerifyPassword(password, a.pepper, stored)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	u = a.users[userID]
	if u == nil || !u.Active {
		a.mu.Unlock()
		a.logAudit(ctx, username, "auth.login_failed", "user removed or deactivated mid-flight")
		return "", ErrInvalidCredentials
	}
	now := a.now()
	if u.IsLocked(now) {
		// A concurrent attempt crossed the threshold while we hashed.
		a.mu.Unlock()
		a.logAudit(ctx, username, "auth.login_blocked", "locked user")
		return "", ErrUserLocked
	}
	if !ok {
		u.FailedAttempts++
		u.UpdatedAt = now
		if u.FailedAttempts >= a.cfg.MaxFailedAttempts {
			until := now.Add(a.cfg.LockoutDuration)
			u.LockedUntil = &until
			a.revokeSessionsLocked(userID)
			a.mu.Unlock()
			a.logAudit(ctx, username, "auth.lockout", "until="+until.Format(time.RFC3339))
			a.logger.Printf("user %s locked after %d failed attempts", username, a.cfg.MaxFailedAttempts)
			return "", ErrInvalidCredentials
		}
		a.mu.Unlock()
		a.logAudit(ctx, username, "auth.login_failed", "wrong password")
		return "", ErrInvalidCredentials
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	u.UpdatedAt = now
	sess := &Session{
		ID:        newID(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(a.cfg.SessionTimeout),
	}
	a.sessions[sess.ID] = sess
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.login_success", "session="+sess.ID)
	return sess.ID, nil
}

// ValidateSession resolves a session id to its user id. Expired sessions
// are removed lazily here; there is no background sweep.
func (a *Authority) ValidateSession(sessionID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	if a.now().After(sess.ExpiresAt) {
		delete(a.sessions, sessionID)
		return "", ErrSessionExpired
	}
	return sess.UserID, nil
}

func (a *Authority) Logout(ctx context.Context, sessionID string) bool {
	a.mu.Lock()
	sess, ok := a.sessions[sessionID]
	if ok {
		delete(a.sessions, sessionID)
	}
	a.mu.Unlock()
	if ok {
		a.logAudit(ctx, sess.UserID, "auth.logout", "session="+sessionID)
	}
	return ok
}

func (a *Authority) GetUser(userID string) (*User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[userID]
	if !ok {
		return nil, false
	}
	return cloneUser(u), true
}

func (a *Authority) GetUserByUsername(username string) (*User, bool) {
	username = strings.ToLower(strings.TrimSpace(username))
	a.mu.RLock()
	defer a.mu.RUnlock()
	u := a.findByUsernameLocked(username)
	if u == nil {
		return nil, false
	}
	return cloneUser(u), true
}

func (a *Authority) GetUserByEmail(email string) (*User, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	a.mu.RLock()
	defer a.mu.RUnlock()
	u := a.findByEmailLocked(email)
	if u == nil {
		return nil, false
	}
	return cloneUser(u), true
}

func (a *Authority) GetUserBySession(sessionID string) (*User, bool) {
	userID, err := a.ValidateSession(sessionID)
	if err != nil {
		return nil, false
	}
	return a.GetUser(userID)
}

func (a *Authority) ListUsers() []*User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*User, 0, len(a.users))
	for _, u := range a.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (a *Authority) ListUsersByRole(role rbac.Role) []*User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*User
	for _, u := range a.users {
		if u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// UpdateUser applies a typed partial update. An unknown role label rejects
// the whole call; username, id, hash and salt are not updatable here.
func (a *Authority) UpdateUser(ctx context.Context, userID string, upd UserUpdate) error {
	var role rbac.Role
	if upd.Role != nil {
		parsed, err := rbac.ParseRole(string(*upd.Role))
		if err != nil {
			return err
		}
		role = parsed
	}
	if upd.Email != nil {
		if err := utils.ValidateEmail(strings.ToLower(strings.TrimSpace(*upd.Email))); err != nil {
			return err
		}
	}

	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if existing := a.findByEmailLocked(email); existing != nil && existing.ID != userID {
			a.mu.Unlock()
			return ErrDuplicateUser
		}
		u.Email = email
	}
	if upd.Role != nil {
		u.Role = role
	}
	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.CustomPermissions != nil {
		u.CustomPermissions = dedupePermissions(*upd.CustomPermissions)
	}
	if upd.Metadata != nil {
		u.Metadata = cloneMetadata(upd.Metadata)
	}
	u.UpdatedAt = a.now()
	username := u.Username
	newRole := u.Role
	perms := append([]rbac.Permission(nil), u.CustomPermissions...)
	a.mu.Unlock()

	a.syncPolicy(userID, newRole, perms)
	a.logAudit(ctx, username, "auth.user.update", "id="+userID)
	return nil
}

func (a *Authority) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return err
	}
	a.mu.RLock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.RUnlock()
		return ErrUserNotFound
	}
	stored := &PasswordHash{Hash: u.PasswordHash, Salt: u.Salt}
	username := u.Username
	a.mu.RUnlock()

	ok, err := VerifyPassword(currentPassword, a.pepper, stored)
	if err != nil {
		return err
	}
	if !ok {
		a.logAudit(ctx, username, "auth.password_change_rejected", "wrong current password")
		return ErrInvalidCredentials
	}
	ph, err := HashPassword(newPassword, a.pepper)
	if err != nil {
		return err
	}

	a.mu.Lock()
	u, exists := a.users[userID]
	if !exists {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	u.PasswordHash = ph.Hash
	u.Salt = ph.Salt
	u.UpdatedAt = a.now()
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.password_change", "id="+userID)
	return nil
}

// ResetPassword is the administrative path: no current-password check, and
// lockout state is cleared.
func (a *Authority) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return err
	}
	ph, err := HashPassword(newPassword, a.pepper)
	if err != nil {
		return err
	}
	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	u.PasswordHash = ph.Hash
	u.Salt = ph.Salt
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = a.now()
	username := u.Username
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.password_reset", "id="+userID)
	return nil
}

// LockUser locks the account for the given duration (the configured default
// when zero) and revokes every active session for the user.
func (a *Authority) LockUser(ctx context.Context, userID string, duration time.Duration) error {
	if duration <= 0 {
		duration = a.cfg.LockoutDuration
	}
	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	until := a.now().Add(duration)
	u.LockedUntil = &until
	u.UpdatedAt = a.now()
	a.revokeSessionsLocked(userID)
	username := u.Username
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.user.lock", "until="+until.Format(time.RFC3339))
	return nil
}

func (a *Authority) UnlockUser(ctx context.Context, userID string) error {
	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	u.LockedUntil = nil
	u.FailedAttempts = 0
	u.UpdatedAt = a.now()
	username := u.Username
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.user.unlock", "id="+userID)
	return nil
}

func (a *Authority) ActivateUser(ctx context.Context, userID string) error {
	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	u.Active = true
	u.UpdatedAt = a.now()
	username := u.Username
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.user.activate", "id="+userID)
	return nil
}

func (a *Authority) DeactivateUser(ctx context.Context, userID string) error {
	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	u.Active = false
	u.UpdatedAt = a.now()
	a.revokeSessionsLocked(userID)
	username := u.Username
	a.mu.Unlock()

	a.logAudit(ctx, username, "auth.user.deactivate", "id="+userID)
	return nil
}

func (a *Authority) DeleteUser(ctx context.Context, userID string) error {
	a.mu.Lock()
	u, ok := a.users[userID]
	if !ok {
		a.mu.Unlock()
		return ErrUserNotFound
	}
	delete(a.users, userID)
	a.revokeSessionsLocked(userID)
	username := u.Username
	a.mu.Unlock()

	if a.policy != nil {
		_ = a.policy.RemoveUser(userID)
	}
	a.logAudit(ctx, username, "auth.user.delete", "id="+userID)
	return nil
}

// HasPermission answers via the rbac policy when one is attached, falling
// back to the static role defaults otherwise.
func (a *Authority) HasPermission(userID string, perm rbac.Permission) bool {
	if a.policy != nil {
		return a.policy.Allowed(userID, perm)
	}
	u, ok := a.GetUser(userID)
	if !ok {
		return false
	}
	for _, p := range rbac.DefaultPermissionsForRole(u.Role) {
		if p == perm {
			return true
		}
	}
	for _, p := range u.CustomPermissions {
		if p == perm {
			return true
		}
	}
	return false
}

type Stats struct {
	Users          int
	ActiveSessions int
	LockedUsers    int
}

func (a *Authority) CurrentStats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := Stats{Users: len(a.users)}
	now := a.now()
	for _, sess := range a.sessions {
		if now.Before(sess.ExpiresAt) {
			st.ActiveSessions++
		}
	}
	for _, u := range a.users {
		if u.IsLocked(now) {
			st.LockedUsers++
		}
	}
	return st
}

func (a *Authority) findByUsernameLocked(username string) *User {
	for _, u := range a.users {
		if strings.EqualFold(u.Username, username) {
			return u
		}
	}
	return nil
}

func (a *Authority) findByEmailLocked(email string) *User {
	for _, u := range a.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

// Full scan of the session table; acceptable at the expected size.
func (a *Authority) revokeSessionsLocked(userID string) {
	for id, sess := range a.sessions {
		if sess.UserID == userID {
			delete(a.sessions, id)
		}
	}
}

func (a *Authority) syncPolicy(userID string, role rbac.Role, perms []rbac.Permission) {
	if a.policy == nil {
		return
	}
	if err := a.policy.SetUserRole(userID, role); err != nil && a.logger != nil {
		a.logger.Errorf("rbac role sync for %s: %v", userID, err)
	}
	if err := a.policy.SetCustomPermissions(userID, perms); err != nil && a.logger != nil {
		a.logger.Errorf("rbac custom perms sync for %s: %v", userID, err)
	}
}

func (a *Authority) logAudit(ctx context.Context, actor, action, details string) {
	if a.audits == nil {
		return
	}
	if err := a.audits.Log(ctx, actor, action, details); err != nil && a.logger != nil {
		a.logger.Errorf("audit log %s: %v", action, err)
	}
}

func cloneUser(u *User) *User {
	out := *u
	out.CustomPermissions = append([]rbac.Permission(nil), u.CustomPermissions...)
	out.Metadata = cloneMetadata(u.Metadata)
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		out.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func dedupePermissions(perms []rbac.Permission) []rbac.Permission {
	if len(perms) == 0 {
		return nil
	}
	set := map[rbac.Permission]struct{}{}
	var out []rbac.Permission
	for _, p := range perms {
		if !rbac.IsKnownPermission(p) {
			continue
		}
		if _, ok := set[p]; ok {
			continue
		}
		set[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
