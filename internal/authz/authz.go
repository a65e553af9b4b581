// Package authz defines the capability model for privileged operations.
//
// Roles grant baseline permission sets; individual scoped grants can widen
// a regular admin's set. Every privileged code path checks a Permission
// through Actor.Can, so there is exactly one place authorization semantics
// live.
package authz

// Role is a coarse account role.
type Role string

const (
	RoleUser       Role = "user"
	RoleSeller     Role = "seller"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Permission is a fine-grained capability.
type Permission string

const (
	PermDisputeResolve  Permission = "DISPUTE_RESOLVE"
	PermListingsReview  Permission = "LISTINGS_REVIEW"
	PermWalletAdjust    Permission = "WALLET_ADJUST"
	PermOrderOverride   Permission = "ORDER_OVERRIDE"
	PermUserManage      Permission = "USER_MANAGE"
	PermAdminManage     Permission = "ADMIN_MANAGE"
	PermGiftcardManage  Permission = "GIFTCARD_MANAGE"
	PermContentModerate Permission = "CONTENT_MODERATE"
)

// Set is a permission set.
type Set map[Permission]struct{}

// NewSet builds a Set from permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether the set contains p.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// rolePerms maps each role to its baseline capabilities. Super admins hold
// everything; regular admins hold nothing by default and act through
// scoped grants.
var rolePerms = map[Role]Set{
	RoleSuperAdmin: NewSet(
		PermDisputeResolve, PermListingsReview, PermWalletAdjust,
		PermOrderOverride, PermUserManage, PermAdminManage,
		PermGiftcardManage, PermContentModerate,
	),
	RoleAdmin: NewSet(),
}

// Actor is an authenticated principal plus its scoped grants.
type Actor struct {
	UserID string
	Roles  []Role
	Grants Set
}

// HasRole reports whether the actor holds the exact role.
func (a Actor) HasRole(r Role) bool {
	for _, have := range a.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor holds admin or super_admin.
func (a Actor) IsAdmin() bool {
	return a.HasRole(RoleAdmin) || a.HasRole(RoleSuperAdmin)
}

// IsSuperAdmin reports whether the actor holds super_admin.
func (a Actor) IsSuperAdmin() bool {
	return a.HasRole(RoleSuperAdmin)
}

// Can reports whether the actor may exercise the permission, via role
// baseline or scoped grant.
func (a Actor) Can(p Permission) bool {
	for _, r := range a.Roles {
		if rolePerms[r].Has(p) {
			return true
		}
	}
	return a.Grants.Has(p)
}
