package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
)

// User-facing validation messages. These are product copy rendered directly
// in the chat, hence not localized here.
const (
	msgNotFound = "Промокод не найден"
	msgExpired  = "Промокод истёк"
	msgUsed     = "Промокод уже использован"
)

// Service validates promo codes and computes discounts.
type Service struct {
	promos Repository
	tiers  []Tier
	// stackable controls whether a promo discount and the automatic tier
	// discount add up. When false, the larger of the two applies.
	stackable bool
}

// Option configures a Service.
type Option func(*Service)

// WithTiers replaces the automatic discount tier table.
func WithTiers(tiers []Tier) Option {
	return func(s *Service) { s.tiers = SortTiers(tiers) }
}

// WithStackable sets whether promo and automatic discounts combine.
func WithStackable(stackable bool) Option {
	return func(s *Service) { s.stackable = stackable }
}

// NewService creates a discount Service with the default tier table and
// additive stacking.
func NewService(promos Repository, opts ...Option) *Service {
	s := &Service{
		promos:    promos,
		tiers:     SortTiers(DefaultTiers()),
		stackable: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidatePromo checks a code at the given instant. The checks run in a fixed
// order and the first failure wins: unknown code, then validity window, then
// the global used flag. Per-user usage is a separate check (CheckUsage) made
// at checkout.
func (s *Service) ValidatePromo(ctx context.Context, code string, now time.Time) (ValidationResult, error) {
	p, err := s.promos.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ValidationResult{Message: msgNotFound}, nil
		}
		return ValidationResult{}, errors.Wrap(err, "lookup promocode")
	}

	if now.Before(p.ValidFrom) || now.After(p.ValidTo) {
		return ValidationResult{Message: msgExpired}, nil
	}

	if p.Used {
		return ValidationResult{Message: msgUsed}, nil
	}

	return ValidationResult{
		Valid: true,
		Type:  p.Type,
		Value: p.Value,
	}, nil
}

// CheckUsage reports whether the user has already applied this code to a
// previous order. Independent of the global used flag.
func (s *Service) CheckUsage(ctx context.Context, code string, userID int64) (bool, error) {
	used, err := s.promos.UsedBy(ctx, strings.TrimSpace(code), userID)
	if err != nil {
		return false, errors.Wrap(err, "check promocode usage")
	}
	return used, nil
}

// AutoDiscount returns the automatic subtotal-tier discount for a subtotal.
func (s *Service) AutoDiscount(subtotal decimal.Decimal) decimal.Decimal {
	return autoDiscount(s.tiers, subtotal)
}

// ApplyDiscounts computes the full discount picture for a cart at the given
// instant: the automatic tier discount, the promo discount when a valid code
// is supplied, and the final total floored at zero. An invalid code
// contributes a zero promo discount rather than an error; callers that need
// the reason should call ValidatePromo first. now is the same instant the
// caller validated against, so the two checks cannot disagree at a window
// boundary.
func (s *Service) ApplyDiscounts(ctx context.Context, c *cart.Cart, code string, now time.Time) (Applied, error) {
	subtotal := cart.CalcTotals(c).Subtotal
	auto := s.AutoDiscount(subtotal)

	promo := decimal.Zero
	if code != "" {
		res, err := s.ValidatePromo(ctx, code, now)
		if err != nil {
			return Applied{}, err
		}
		if res.Valid {
			promo = promoDiscount(res.Type, res.Value, subtotal)
		}
	}

	if !s.stackable && promo.IsPositive() && auto.IsPositive() {
		if promo.GreaterThanOrEqual(auto) {
			auto = decimal.Zero
		} else {
			promo = decimal.Zero
		}
	}

	total := subtotal.Sub(promo).Sub(auto)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Applied{
		PromoDiscount: promo,
		AutoDiscount:  auto,
		FinalTotal:    total,
	}, nil
}
