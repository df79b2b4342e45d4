// Package policy maps roles to permissions and answers authorization checks.
package policy

type Role string

const (
	Admin        Role = "ADMIN"
	Staff        Role = "STAFF"
	Customer     Role = "CUSTOMER"
	Agent        Role = "AGENT"
	Collaborator Role = "COLLABORATOR"
)

type Permission string

const (
	OrdersView        Permission = "orders.view"
	OrdersEdit        Permission = "orders.edit"
	ProductsEdit      Permission = "products.edit"
	PostsEdit         Permission = "posts.edit"
	SettingsEdit      Permission = "settings.edit"
	UsersEdit         Permission = "users.edit"
	CommissionsManage Permission = "commissions.manage"
	AffiliateUse      Permission = "affiliate.use"
)

var All = []Permission{
	OrdersView, OrdersEdit, ProductsEdit, PostsEdit,
	SettingsEdit, UsersEdit, CommissionsManage, AffiliateUse,
}

var rolePermissions = map[Role][]Permission{
	Staff:        {OrdersView, OrdersEdit, ProductsEdit, PostsEdit},
	Agent:        {AffiliateUse},
	Collaborator: {AffiliateUse},
}

func ValidRole(r string) bool {
	switch Role(r) {
	case Admin, Staff, Customer, Agent, Collaborator:
		return true
	}
	return false
}

func ValidPermission(p string) bool {
	for _, known := range All {
		if Permission(p) == known {
			return true
		}
	}
	return false
}

// Subject is the authenticated caller as seen by the policy.
type Subject struct {
	UserID   int64
	Email    string
	Role     Role
	Extra    []string
	IsActive bool
}

// PermissionsFor returns the effective permission set. Extra grants apply to STAFF only.
func PermissionsFor(role Role, extra []string) []Permission {
	if role == Admin {
		return append([]Permission(nil), All...)
	}
	out := append([]Permission(nil), rolePermissions[role]...)
	if role != Staff {
		return out
	}
	for _, e := range extra {
		p := Permission(e)
		if ValidPermission(e) && !contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

func Can(s Subject, perm Permission) bool {
	if !s.IsActive {
		return false
	}
	return contains(PermissionsFor(s.Role, s.Extra), perm)
}

// CanAny is true when at least one of perms is granted.
func CanAny(s Subject, perms ...Permission) bool {
	for _, p := range perms {
		if Can(s, p) {
			return true
		}
	}
	return false
}

func contains(perms []Permission, p Permission) bool {
	for _, x := range perms {
		if x == p {
			return true
		}
	}
	return false
}
