package handler

import (
	"github.com/shopspring/decimal"

	"github.com/cminh91/dong-y-sub001/internal/database/models"
)

// UserLookup returns the user with id, or nil when there is none.
type UserLookup func(id int64) (*models.User, error)

var hundred = decimal.NewFromInt(100)

// BuildCommissions walks the referral chain starting at the link owner and returns
// the commission rows to insert for an order whose subtotal is base.
func BuildCommissions(base decimal.Decimal, link models.AffiliateLink, buyerID *int64, settings AffiliateSettings, lookup UserLookup) ([]models.Commission, error) {
	if !base.IsPositive() || settings.MaxLevels < 1 {
		return nil, nil
	}

	owner, err := lookup(link.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil || !owner.IsActive || isBuyer(owner.ID, buyerID) {
		return nil, nil
	}

	linkID := link.ID
	seen := map[int64]bool{owner.ID: true}
	var out []models.Commission

	rate := link.CommissionRate
	if !rate.IsPositive() {
		rate = owner.CommissionRate
	}
	if !rate.IsPositive() {
		rate = levelRate(settings, 1)
	}
	out = appendCommission(out, owner.ID, &linkID, 1, base, rate)

	current := owner
	for level := 2; level <= settings.MaxLevels; level++ {
		if current.ReferredByID == nil {
			break
		}
		next, err := lookup(*current.ReferredByID)
		if err != nil {
			return nil, err
		}
		if next == nil || !next.IsActive || seen[next.ID] || isBuyer(next.ID, buyerID) {
			break
		}
		seen[next.ID] = true
		if next.EarnsDownline() {
			out = appendCommission(out, next.ID, &linkID, level, base, levelRate(settings, level))
		}
		current = next
	}

	return out, nil
}

func appendCommission(out []models.Commission, userID int64, linkID *int64, level int, base, rate decimal.Decimal) []models.Commission {
	amount := base.Mul(rate).Div(hundred).Round(0)
	if !amount.IsPositive() {
		return out
	}
	return append(out, models.Commission{
		UserID:          userID,
		AffiliateLinkID: linkID,
		Level:           level,
		BaseAmount:      base,
		Rate:            rate,
		Amount:          amount,
		Status:          models.CommissionPending,
	})
}

func levelRate(s AffiliateSettings, level int) decimal.Decimal {
	if level-1 < len(s.LevelRates) {
		return decimal.NewFromFloat(s.LevelRates[level-1])
	}
	return decimal.Zero
}

func isBuyer(id int64, buyerID *int64) bool {
	return buyerID != nil && *buyerID == id
}
