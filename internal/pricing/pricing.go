// Package pricing holds the order arithmetic. Every stored order amount is produced here.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeAmount   = errors.New("pricing: amounts must not be negative")
	ErrDiscountTooLarge = errors.New("pricing: discount exceeds subtotal plus shipping")
)

type Totals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Discount decimal.Decimal
	Final    decimal.Decimal
}

// EffectivePrice is the sale price when it is set and positive, otherwise the list price.
func EffectivePrice(price decimal.Decimal, salePrice *decimal.Decimal) decimal.Decimal {
	if salePrice != nil && salePrice.IsPositive() {
		return *salePrice
	}
	return price
}

func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l.UnitPrice, l.Quantity))
	}
	return sum
}

// Compute returns final = subtotal + shipping - discount.
func Compute(subtotal, shipping, discount decimal.Decimal) (Totals, error) {
	if subtotal.IsNegative() || shipping.IsNegative() || discount.IsNegative() {
		return Totals{}, ErrNegativeAmount
	}
	gross := subtotal.Add(shipping)
	if discount.GreaterThan(gross) {
		return Totals{}, ErrDiscountTooLarge
	}
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Final:    gross.Sub(discount),
	}, nil
}

// WithinTolerance reports whether |a - b| <= tolerance.
func WithinTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
