package promo

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Tier is one row of the automatic discount table: carts with a subtotal of
// at least MinSubtotal get Percent off without any code.
type Tier struct {
	MinSubtotal decimal.Decimal
	Percent     decimal.Decimal
}

// DefaultTiers is the stock configuration: 5% off subtotals of 50 000+.
func DefaultTiers() []Tier {
	return []Tier{
		{MinSubtotal: decimal.NewFromInt(50_000), Percent: decimal.NewFromInt(5)},
	}
}

// SortTiers orders tiers by ascending threshold so tier selection can walk
// them deterministically. Config is free to list them in any order.
func SortTiers(tiers []Tier) []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.Slice(out, func(i, j int) bool {
		return out[i].MinSubtotal.LessThan(out[j].MinSubtotal)
	})
	return out
}

// autoDiscount selects the highest tier the subtotal qualifies for and
// returns that percentage of the subtotal, rounded to the minor unit.
// Below every threshold the discount is zero. tiers must be sorted ascending.
func autoDiscount(tiers []Tier, subtotal decimal.Decimal) decimal.Decimal {
	selected := decimal.Zero
	for _, t := range tiers {
		if subtotal.GreaterThanOrEqual(t.MinSubtotal) {
			selected = t.Percent
		}
	}
	if selected.IsZero() {
		return decimal.Zero
	}
	return subtotal.Mul(selected).Div(hundred).Round(2)
}

// promoDiscount computes the discount a validated code yields on a subtotal.
// Percent codes take value% of the subtotal rounded half-up to the minor
// unit; fixed codes are capped at the subtotal so the discount never exceeds
// what is being bought.
func promoDiscount(typ DiscountType, value, subtotal decimal.Decimal) decimal.Decimal {
	switch typ {
	case DiscountPercent:
		return subtotal.Mul(value).Div(hundred).Round(2)
	case DiscountFixed:
		return decimal.Min(value, subtotal)
	default:
		return decimal.Zero
	}
}
