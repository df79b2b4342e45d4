package handler

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
)

func int64Ptr(v int64) *int64 { return &v }

func users(list ...models.User) UserLookup {
	byID := map[int64]models.User{}
	for _, u := range list {
		byID[u.ID] = u
	}
	return func(id int64) (*models.User, error) {
		u, ok := byID[id]
		if !ok {
			return nil, nil
		}
		return &u, nil
	}
}

func TestBuildCommissionsTwoLevels(t *testing.T) {
	lookup := users(
		models.User{ID: 1, Role: models.RoleAgent, IsActive: true},
		models.User{ID: 2, Role: models.RoleCollaborator, IsActive: true, ReferredByID: int64Ptr(1)},
	)
	link := models.AffiliateLink{ID: 9, UserID: 2}

	rows, err := BuildCommissions(decimal.NewFromInt(500000), link, nil, DefaultAffiliateSettings(), lookup)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].UserID != 2 || !rows[0].Amount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("level 1: %+v", rows[0])
	}
	if rows[1].UserID != 1 || rows[1].Level != 2 || !rows[1].Amount.Equal(decimal.NewFromInt(15000)) {
		t.Fatalf("level 2: %+v", rows[1])
	}
}

func TestBuildCommissionsRatePrecedence(t *testing.T) {
	owner := models.User{ID: 1, Role: models.RoleAgent, IsActive: true, CommissionRate: decimal.NewFromInt(12)}

	link := models.AffiliateLink{ID: 1, UserID: 1, CommissionRate: decimal.NewFromInt(15)}
	rows, _ := BuildCommissions(decimal.NewFromInt(100000), link, nil, DefaultAffiliateSettings(), users(owner))
	if !rows[0].Rate.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("link rate should win, got %s", rows[0].Rate)
	}

	link.CommissionRate = decimal.Zero
	rows, _ = BuildCommissions(decimal.NewFromInt(100000), link, nil, DefaultAffiliateSettings(), users(owner))
	if !rows[0].Rate.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("user rate should apply, got %s", rows[0].Rate)
	}

	owner.CommissionRate = decimal.Zero
	rows, _ = BuildCommissions(decimal.NewFromInt(100000), link, nil, DefaultAffiliateSettings(), users(owner))
	if !rows[0].Rate.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("settings rate should apply, got %s", rows[0].Rate)
	}
}

func TestBuildCommissionsStopsAtBuyerAndCycles(t *testing.T) {
	lookup := users(
		models.User{ID: 1, Role: models.RoleAgent, IsActive: true, ReferredByID: int64Ptr(2)},
		models.User{ID: 2, Role: models.RoleAgent, IsActive: true, ReferredByID: int64Ptr(1)},
	)
	settings := DefaultAffiliateSettings()
	settings.MaxLevels = 4
	settings.LevelRates = []float64{10, 3, 2, 1}

	rows, _ := BuildCommissions(decimal.NewFromInt(100000), models.AffiliateLink{UserID: 1}, nil, settings, lookup)
	if len(rows) != 2 {
		t.Fatalf("cycle should stop the chain, got %d rows", len(rows))
	}

	rows, _ = BuildCommissions(decimal.NewFromInt(100000), models.AffiliateLink{UserID: 1}, int64Ptr(2), settings, lookup)
	if len(rows) != 1 {
		t.Fatalf("buyer must not earn, got %d rows", len(rows))
	}

	rows, _ = BuildCommissions(decimal.NewFromInt(100000), models.AffiliateLink{UserID: 1}, int64Ptr(1), settings, lookup)
	if len(rows) != 0 {
		t.Fatal("self-referral must not earn")
	}
}

func TestBuildCommissionsCustomerEarnsOnlyOnOwnLink(t *testing.T) {
	lookup := users(
		models.User{ID: 1, Role: models.RoleCustomer, IsActive: true},
		models.User{ID: 2, Role: models.RoleCustomer, IsActive: true, ReferredByID: int64Ptr(1)},
	)
	rows, _ := BuildCommissions(decimal.NewFromInt(100000), models.AffiliateLink{UserID: 2}, nil, DefaultAffiliateSettings(), lookup)
	if len(rows) != 1 || rows[0].UserID != 2 {
		t.Fatalf("only the link owner should earn, got %+v", rows)
	}
}

func TestBuildCommissionsRoundsAndSkipsZero(t *testing.T) {
	lookup := users(models.User{ID: 1, Role: models.RoleAgent, IsActive: true})
	rows, _ := BuildCommissions(decimal.NewFromInt(12345), models.AffiliateLink{UserID: 1}, nil, DefaultAffiliateSettings(), lookup)
	if !rows[0].Amount.Equal(decimal.NewFromInt(1235)) {
		t.Fatalf("expected 1235, got %s", rows[0].Amount)
	}

	rows, _ = BuildCommissions(decimal.NewFromInt(4), models.AffiliateLink{UserID: 1}, nil, DefaultAffiliateSettings(), lookup)
	if len(rows) != 0 {
		t.Fatal("zero amounts are not inserted")
	}
}

func TestSettingsValidate(t *testing.T) {
	s := DefaultAffiliateSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	s.MaxLevels = 3
	if err := s.Validate(); err == nil {
		t.Fatal("missing level rate should be rejected")
	}
}
