package rbac

import "testing"

func TestDefaultRolePermissions(t *testing.T) {
	p, err := NewPolicy(DefaultRoles())
	if err != nil {
		t.Fatalf("build policy: %v", err)
	}
	cases := []struct {
		roles      []string
		permission string
		want       bool
	}{
		{[]string{RoleAdmin}, PermUsersManage, true},
		{[]string{RoleAdmin}, PermAuditView, true},
		{[]string{RoleAnalyst}, PermUsersManage, false},
		{[]string{RoleAnalyst}, PermAuditView, false},
		{[]string{RoleAnalyst}, PermIncidentsEdit, true},
		{[]string{RoleAnalyst}, PermDashboardView, true},
		{[]string{RoleAnalyst, RoleAdmin}, PermUsersManage, true},
		{[]string{"guest"}, PermIncidentsView, false},
		{nil, PermIncidentsView, false},
	}
	for _, tc := range cases {
		if got := p.Allowed(tc.roles, tc.permission); got != tc.want {
			t.Fatalf("Allowed(%v, %s) = %v, want %v", tc.roles, tc.permission, got, tc.want)
		}
	}
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	var p *Policy
	if p.Allowed([]string{RoleAdmin}, PermUsersManage) {
		t.Fatalf("expected nil policy to deny")
	}
}

func TestValidRole(t *testing.T) {
	for role, want := range map[string]bool{
		RoleAdmin:   true,
		RoleAnalyst: true,
		"root":      false,
		"":          false,
	} {
		if got := ValidRole(role); got != want {
			t.Fatalf("ValidRole(%q) = %v, want %v", role, got, want)
		}
	}
}
