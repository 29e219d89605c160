package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError reports a quantity that cannot be satisfied by the
// product's current stock. Raised on cart mutation and again at checkout,
// where the final availability check is atomic with the reservation.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// UnavailableError reports an attempt to buy a product that has been
// deactivated since it was added to the cart.
type UnavailableError struct {
	ProductID int64
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %d is no longer available", e.ProductID)
}

// Product represents a catalog item available for purchase.
// Price and Stock are the live source of truth; cart lines re-resolve against
// them on every read, order items freeze them at checkout.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	Stock      int
	CategoryID int64
	Active     bool
}

// Category groups catalog items for browsing. Category management is owned by
// the admin tooling; this core only reads it.
type Category struct {
	ID   int64
	Name string
}

// Repository defines catalog access plus the stock adjustment primitive the
// order flow relies on.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	List(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)

	// AdjustStock changes a product's stock by delta (negative to reserve,
	// positive to release). Implementations must reject adjustments that
	// would drive stock below zero.
	AdjustStock(ctx context.Context, id int64, delta int) error
}
