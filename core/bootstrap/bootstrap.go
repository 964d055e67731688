package bootstrap

import (
	"context"

	"fintechx-ops/config"
	"fintechx-ops/core/auth"
	"fintechx-ops/core/rbac"
	"fintechx-ops/core/utils"
)

// EnsureDefaultAdmin seeds the first administrator when the user table is
// empty. Without a configured password nothing is created; the operator
// has to set one explicitly rather than inherit a well-known default.
func EnsureDefaultAdmin(ctx context.Context, cfg config.BootstrapConfig, authority *auth.Authority, logger *utils.Logger) error {
	if len(authority.ListUsers()) > 0 {
		return nil
	}
	if cfg.AdminPassword == "" {
		logger.Errorf("no users exist and no admin password configured; skipping admin bootstrap")
		return nil
	}
	id, err := authority.CreateUser(ctx, auth.CreateUserInput{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     rbac.RoleAdmin,
	})
	if err != nil {
		return err
	}
	logger.Printf("bootstrapped admin user %s (%s)", id, cfg.AdminUsername)
	return nil
}
