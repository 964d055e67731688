package rbac

import (
	"fmt"
	"sort"
	"strings"
)

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleOperator Role = "Operator"
	RoleViewer   Role = "Viewer"
	RoleCustomer Role = "Customer"
	RoleMerchant Role = "Merchant"
)

type Permission string

const (
	PermViewDashboard    Permission = "view_dashboard"
	PermViewTransactions Permission = "view_transactions"
	PermProcessPayments  Permission = "process_payments"
	PermManageCards      Permission = "manage_cards"
	PermManageBills      Permission = "manage_bills"
	PermManageUsers      Permission = "manage_users"
	PermManageMerchants  Permission = "manage_merchants"
	PermManageCustomers  Permission = "manage_customers"
	PermSystemSettings   Permission = "system_settings"
	PermExportData       Permission = "export_data"
	PermViewReports      Permission = "view_reports"
	PermFraudManagement  Permission = "fraud_management"
)

var permissions = []Permission{
	PermViewDashboard, PermViewTransactions, PermProcessPayments,
	PermManageCards, PermManageBills, PermManageUsers,
	PermManageMerchants, PermManageCustomers, PermSystemSettings,
	PermExportData, PermViewReports, PermFraudManagement,
}

var knownPermissionSet = buildPermissionSet()

func buildPermissionSet() map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(permissions))
	for _, p := range permissions {
		out[p] = struct{}{}
	}
	return out
}

func AllPermissions() []Permission {
	out := make([]Permission, len(permissions))
	copy(out, permissions)
	return out
}

func IsKnownPermission(p Permission) bool {
	_, ok := knownPermissionSet[p]
	return ok
}

func ParsePermission(raw string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(raw)))
	if !IsKnownPermission(p) {
		return "", fmt.Errorf("unknown permission: %s", raw)
	}
	return p, nil
}

// NormalizePermissionNames splits raw names into known and unknown sets,
// both deduplicated and sorted.
func NormalizePermissionNames(in []string) ([]string, []string) {
	validSet := map[string]struct{}{}
	invalidSet := map[string]struct{}{}
	for _, raw := range in {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			continue
		}
		if IsKnownPermission(Permission(p)) {
			validSet[p] = struct{}{}
			continue
		}
		invalidSet[p] = struct{}{}
	}
	valid := make([]string, 0, len(validSet))
	for p := range validSet {
		valid = append(valid, p)
	}
	sort.Strings(valid)
	invalid := make([]string, 0, len(invalidSet))
	for p := range invalidSet {
		invalid = append(invalid, p)
	}
	sort.Strings(invalid)
	return valid, invalid
}

var roleNames = []Role{RoleAdmin, RoleManager, RoleOperator, RoleViewer, RoleCustomer, RoleMerchant}

func AllRoles() []Role {
	out := make([]Role, len(roleNames))
	copy(out, roleNames)
	return out
}

func ParseRole(raw string) (Role, error) {
	trimmed := strings.TrimSpace(raw)
	for _, r := range roleNames {
		if strings.EqualFold(string(r), trimmed) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role: %s", raw)
}

// defaultRolePermissions is the fixed role to permission-set mapping.
// It is configuration, never mutated at runtime.
var defaultRolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermViewDashboard, PermViewTransactions, PermProcessPayments,
		PermManageCards, PermManageBills, PermManageUsers,
		PermManageMerchants, PermManageCustomers, PermSystemSettings,
		PermExportData, PermViewReports, PermFraudManagement,
	},
	RoleManager: {
		PermViewDashboard, PermViewTransactions, PermProcessPayments,
		PermManageCards, PermManageBills, PermManageCustomers,
		PermExportData, PermViewReports, PermFraudManagement,
	},
	RoleOperator: {
		PermViewDashboard, PermViewTransactions, PermProcessPayments,
		PermViewReports,
	},
	RoleViewer: {
		PermViewDashboard, PermViewTransactions, PermViewReports,
	},
	RoleCustomer: {
		PermViewDashboard, PermViewTransactions, PermManageCards,
		PermManageBills,
	},
	RoleMerchant: {
		PermViewDashboard, PermViewTransactions, PermProcessPayments,
		PermViewReports,
	},
}

func DefaultPermissionsForRole(role Role) []Permission {
	perms := defaultRolePermissions[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
