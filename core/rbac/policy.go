package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	RoleAdmin   = "admin"
	RoleAnalyst = "analyst"
)

const (
	PermDashboardView = "dashboard.view"
	PermIncidentsView = "incidents.view"
	PermIncidentsEdit = "incidents.edit"
	PermUsersManage   = "users.manage"
	PermAuditView     = "audit.view"
)

// rbacModel matches role subjects directly against permission actions.
const rbacModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.act == p.act
`

type Role struct {
	Name        string
	Permissions []string
}

func DefaultRoles() []Role {
	return []Role{
		{
			Name: RoleAdmin,
			Permissions: []string{
				PermDashboardView,
				PermIncidentsView,
				PermIncidentsEdit,
				PermUsersManage,
				PermAuditView,
			},
		},
		{
			Name: RoleAnalyst,
			Permissions: []string{
				PermDashboardView,
				PermIncidentsView,
				PermIncidentsEdit,
			},
		},
	}
}

// Policy answers role/permission checks via an in-memory casbin enforcer.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			if _, err := e.AddPolicy(role.Name, perm); err != nil {
				return nil, fmt.Errorf("rbac policy %s/%s: %w", role.Name, perm, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func (p *Policy) Allowed(roles []string, permission string) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, permission)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleAnalyst
}
