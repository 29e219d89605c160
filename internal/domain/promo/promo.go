package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported promo code discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage of the cart subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountFixed applies a fixed amount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// ErrNotFound is returned by repositories when no promo code matches.
var ErrNotFound = errors.New("promocode not found")

// Promocode is a user-entered discount token. Code matching is
// case-insensitive. Used is a legacy global flag kept alongside per-user
// usage rows; both are enforced.
type Promocode struct {
	Code      string
	Type      DiscountType
	Value     decimal.Decimal
	ValidFrom time.Time
	ValidTo   time.Time
	Used      bool
}

// Repository provides promo code lookup and per-user usage tracking.
// Codes themselves are created by an external admin workflow; this core only
// reads them and records usage.
type Repository interface {
	// FindByCode performs a case-insensitive lookup.
	// Returns ErrNotFound when no code matches.
	FindByCode(ctx context.Context, code string) (*Promocode, error)
	// UsedBy reports whether the user has already applied this code.
	UsedBy(ctx context.Context, code string, userID int64) (bool, error)
	// RecordUsage remembers that the user applied this code. Called only
	// after the order that consumed the code has been committed.
	RecordUsage(ctx context.Context, code string, userID int64) error
}

// ValidationResult is the outcome of checking a promo code. Message carries
// the user-facing text for invalid codes, ready to render in chat.
type ValidationResult struct {
	Valid   bool
	Message string
	Type    DiscountType
	Value   decimal.Decimal
}

// Applied is the outcome of applying discounts to a cart.
type Applied struct {
	PromoDiscount decimal.Decimal
	AutoDiscount  decimal.Decimal
	FinalTotal    decimal.Decimal
}
