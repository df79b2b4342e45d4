package policy

import "testing"

func TestAdminHoldsEverything(t *testing.T) {
	s := Subject{UserID: 1, Role: Admin, IsActive: true}
	for _, p := range All {
		if !Can(s, p) {
			t.Fatalf("admin should hold %s", p)
		}
	}
}

func TestStaffExtraPermissions(t *testing.T) {
	s := Subject{UserID: 2, Role: Staff, IsActive: true}
	if Can(s, SettingsEdit) {
		t.Fatal("staff should not edit settings by default")
	}
	if !Can(s, OrdersEdit) {
		t.Fatal("staff should edit orders")
	}

	s.Extra = []string{"settings.edit", "bogus.perm"}
	if !Can(s, SettingsEdit) {
		t.Fatal("extra grant should apply to staff")
	}
	if got := len(PermissionsFor(Staff, s.Extra)); got != 5 {
		t.Fatalf("expected 5 permissions, got %d", got)
	}
}

func TestExtraIgnoredOutsideStaff(t *testing.T) {
	s := Subject{UserID: 3, Role: Customer, Extra: []string{"orders.edit"}, IsActive: true}
	if Can(s, OrdersEdit) {
		t.Fatal("customers cannot be granted admin permissions")
	}
}

func TestInactiveSubjectHasNothing(t *testing.T) {
	s := Subject{UserID: 4, Role: Admin}
	if Can(s, OrdersView) {
		t.Fatal("inactive account must be denied")
	}
}

func TestAffiliateRoles(t *testing.T) {
	for _, r := range []Role{Agent, Collaborator} {
		if !Can(Subject{Role: r, IsActive: true}, AffiliateUse) {
			t.Fatalf("%s should use affiliate links", r)
		}
	}
	if CanAny(Subject{Role: Customer, IsActive: true}, AffiliateUse, OrdersView) {
		t.Fatal("customer holds no listed permission")
	}
}
