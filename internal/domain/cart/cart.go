package cart

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Item is a single product-quantity line in a user's cart. Name, Price, Stock
// and Unavailable are display fields re-resolved from the catalog on every
// read; only (ProductID, Qty) are persisted.
type Item struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Qty       int
	Stock     int
	// Unavailable marks a line whose product has been deactivated since it
	// was added. The line is still returned so the user can see and remove
	// it, but checkout rejects carts containing such lines.
	Unavailable bool
}

// Cart holds all lines for one user. Lines keep insertion order for
// deterministic display; no two lines share a ProductID.
type Cart struct {
	UserID int64
	Items  []Item
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Totals are derived cart aggregates, never persisted.
type Totals struct {
	Subtotal       decimal.Decimal
	ItemsCount     int
	PositionsCount int
}

// CalcTotals computes cart aggregates. Pure function, no I/O.
func CalcTotals(c *Cart) Totals {
	subtotal := decimal.Zero
	items := 0
	for _, it := range c.Items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
		items += it.Qty
	}
	return Totals{
		Subtotal:       subtotal,
		ItemsCount:     items,
		PositionsCount: len(c.Items),
	}
}

// Line is the persisted shape of a cart row: just the product reference and
// quantity, keyed by (user, product).
type Line struct {
	ProductID int64
	Qty       int
}

// Repository is the backing store for carts. Absence of rows means an empty
// cart; carts are never deleted as entities.
type Repository interface {
	// Lines returns the user's cart rows in insertion order.
	Lines(ctx context.Context, userID int64) ([]Line, error)
	// Upsert creates or replaces the (userID, productID) row with qty.
	Upsert(ctx context.Context, userID int64, line Line) error
	// Delete removes the (userID, productID) row. Deleting an absent row is
	// not an error.
	Delete(ctx context.Context, userID, productID int64) error
	// Clear removes all rows for the user.
	Clear(ctx context.Context, userID int64) error
}

// ItemNotFoundError reports an update targeting a line that is not in the cart.
type ItemNotFoundError struct {
	ProductID int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("cart item for product %d not found", e.ProductID)
}

// ValidationError reports a caller contract violation such as a non-positive
// quantity on add.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
