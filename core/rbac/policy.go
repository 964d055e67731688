package rbac

import (
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const policyModel = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.perm == p.perm
`

// Policy answers permission checks for users. Role default permissions are
// loaded once at construction; per-user custom grants and role membership
// are maintained as users are created, updated, and deleted.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, role := range AllRoles() {
		for _, perm := range DefaultPermissionsForRole(role) {
			if _, err := e.AddPolicy(string(role), string(perm)); err != nil {
				return nil, err
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

// SetUserRole replaces the user's role membership with the given role.
func (p *Policy) SetUserRole(userID string, role Role) error {
	if _, err := p.enforcer.RemoveFilteredGroupingPolicy(0, userID); err != nil {
		return err
	}
	_, err := p.enforcer.AddGroupingPolicy(userID, string(role))
	return err
}

// SetCustomPermissions replaces the user's direct grants. Role defaults are
// untouched.
func (p *Policy) SetCustomPermissions(userID string, perms []Permission) error {
	if _, err := p.enforcer.RemoveFilteredPolicy(0, userID); err != nil {
		return err
	}
	for _, perm := range perms {
		if _, err := p.enforcer.AddPolicy(userID, string(perm)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Policy) RemoveUser(userID string) error {
	if _, err := p.enforcer.RemoveFilteredGroupingPolicy(0, userID); err != nil {
		return err
	}
	_, err := p.enforcer.RemoveFilteredPolicy(0, userID)
	return err
}

func (p *Policy) Allowed(userID string, perm Permission) bool {
	ok, err := p.enforcer.Enforce(userID, string(perm))
	return err == nil && ok
}

// EffectivePermissions returns the union of the user's role defaults and
// custom grants, sorted.
func (p *Policy) EffectivePermissions(userID string) []Permission {
	lines, err := p.enforcer.GetImplicitPermissionsForUser(userID)
	if err != nil {
		return nil
	}
	set := map[Permission]struct{}{}
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		set[Permission(line[1])] = struct{}{}
	}
	out := make([]Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
