package authz

import "testing"

func TestSuperAdminHasEverything(t *testing.T) {
	a := Actor{UserID: "u1", Roles: []Role{RoleSuperAdmin}}

	for _, p := range []Permission{
		PermDisputeResolve, PermWalletAdjust, PermOrderOverride,
		PermAdminManage, PermGiftcardManage,
	} {
		if !a.Can(p) {
			t.Errorf("super_admin should hold %s", p)
		}
	}
}

func TestPlainAdminNeedsGrants(t *testing.T) {
	a := Actor{UserID: "u2", Roles: []Role{RoleAdmin}}

	if a.Can(PermDisputeResolve) {
		t.Error("plain admin should not resolve disputes without a grant")
	}

	a.Grants = NewSet(PermDisputeResolve)
	if !a.Can(PermDisputeResolve) {
		t.Error("granted admin should resolve disputes")
	}
	if a.Can(PermWalletAdjust) {
		t.Error("grant for one scope must not leak into another")
	}
}

func TestRegularUserHasNothing(t *testing.T) {
	a := Actor{UserID: "u3", Roles: []Role{RoleUser, RoleSeller}}

	if a.IsAdmin() {
		t.Error("seller is not an admin")
	}
	if a.Can(PermContentModerate) {
		t.Error("regular user cannot moderate")
	}
}
