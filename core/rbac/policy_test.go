package rbac

import "testing"

func TestParseRole(t *testing.T) {
	r, err := ParseRole("operator")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r != RoleOperator {
		t.Fatalf("expected Operator, got %s", r)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestPolicyRoleDefaults(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if err := p.SetUserRole("u1", RoleViewer); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if !p.Allowed("u1", PermViewDashboard) {
		t.Fatalf("viewer should see dashboard")
	}
	if p.Allowed("u1", PermManageUsers) {
		t.Fatalf("viewer must not manage users")
	}
}

func TestPolicyCustomPermissionUnion(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if err := p.SetUserRole("u1", RoleViewer); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := p.SetCustomPermissions("u1", []Permission{PermExportData}); err != nil {
		t.Fatalf("set custom: %v", err)
	}
	if !p.Allowed("u1", PermExportData) {
		t.Fatalf("custom grant not applied")
	}
	perms := p.EffectivePermissions("u1")
	want := map[Permission]bool{PermViewDashboard: false, PermViewTransactions: false, PermViewReports: false, PermExportData: false}
	for _, perm := range perms {
		if _, ok := want[perm]; ok {
			want[perm] = true
		}
	}
	for perm, seen := range want {
		if !seen {
			t.Fatalf("missing effective permission %s in %v", perm, perms)
		}
	}

	// Replacing custom grants drops the old ones.
	if err := p.SetCustomPermissions("u1", nil); err != nil {
		t.Fatalf("clear custom: %v", err)
	}
	if p.Allowed("u1", PermExportData) {
		t.Fatalf("custom grant should be revoked")
	}
}

func TestPolicyRemoveUser(t *testing.T) {
	p, err := NewPolicy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if err := p.SetUserRole("u2", RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := p.RemoveUser("u2"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if p.Allowed("u2", PermViewDashboard) {
		t.Fatalf("removed user still allowed")
	}
}
