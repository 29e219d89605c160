package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is an order's position in its lifecycle.
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions is the full allowed-transition table. Delivered and cancelled
// are terminal.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
	StatusDelivered: {},
	StatusCancelled: {},
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the move from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable reports whether an order in this status may still be cancelled.
// Shipped, delivered and cancelled orders may not.
func (s Status) Cancellable() bool {
	return s.CanTransition(StatusCancelled)
}

// Contact is the delivery contact snapshot frozen onto the order.
type Contact struct {
	Name    string
	Phone   string
	Address string
}

// Order is a confirmed purchase. Everything except Status (and the audit
// timestamp) is immutable after creation; money fields and the contact are
// snapshots unaffected by later catalog edits.
type Order struct {
	ID            int64
	UserID        int64
	Number        string
	Status        Status
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Contact       Contact
	PaymentMethod string
	PromoCode     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Item is one frozen line of an order: name and unit price are copied from
// the catalog at checkout and never change afterwards.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Qty       int
}

// FormatNumber renders the human-readable order number for a creation date
// and a per-day sequence value, e.g. ORD-20241201-0002.
func FormatNumber(t time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", t.Format("20060102"), seq)
}

// ErrNotFound is returned when a referenced order does not exist or is not
// owned by the caller.
var ErrNotFound = errors.New("order not found")

// ErrStatusConflict is returned by compare-and-set status updates when the
// order's current status no longer matches the one the caller observed.
var ErrStatusConflict = errors.New("order status changed concurrently")

// Repository persists orders and their line items. Status is the only
// mutable field it updates after creation.
type Repository interface {
	// GetByID returns the order or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// ListByUser returns the user's orders, most recent first.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// Items returns the order's frozen line items.
	Items(ctx context.Context, orderID int64) ([]Item, error)
	// UpdateStatus persists a new status and bumps the audit timestamp,
	// but only while the current status still equals from. Returns
	// ErrStatusConflict on a lost race and ErrNotFound for unknown orders.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
}

// CheckoutStore commits the two stock-moving order operations, each as one
// atomic unit.
//
// Checkout persists the order and its items, assigns ID and order number,
// decrements stock for every line (failing with
// product.InsufficientStockError if any line cannot be satisfied), records
// promo usage when promoCode is non-empty, and clears the user's cart. A
// failure at any point leaves cart, stock, orders and promo usage unchanged.
//
// Cancel flips the order from the observed status to cancelled and returns
// every line's quantity to stock in the same unit, so the release happens
// exactly once no matter how many cancellations race. Returns
// ErrStatusConflict when the status moved since from was read.
type CheckoutStore interface {
	Checkout(ctx context.Context, o *Order, items []Item, promoCode string) error
	Cancel(ctx context.Context, orderID int64, from Status) error
}

// Notifier delivers order events. Implementations are best-effort: the order
// flow logs and ignores their errors, so delivery can never affect commit
// correctness.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order) error
	StatusChanged(ctx context.Context, o *Order) error
	PaymentSucceeded(ctx context.Context, o *Order) error
	AdminNewOrder(ctx context.Context, o *Order) error
}

// EmptyCartError reports a checkout attempt on an empty cart.
type EmptyCartError struct {
	UserID int64
}

func (e *EmptyCartError) Error() string {
	return fmt.Sprintf("cart for user %d is empty", e.UserID)
}

// InvalidStatusTransitionError reports a disallowed status change.
type InvalidStatusTransitionError struct {
	Current Status
	Next    Status
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.Current, e.Next)
}

// CannotCancelError reports a cancellation attempt on an order that is
// already shipped, delivered or cancelled.
type CannotCancelError struct {
	Status Status
}

func (e *CannotCancelError) Error() string {
	return fmt.Sprintf("order in status %s cannot be cancelled", e.Status)
}

// PromoRejectedError reports a promo code that did not pass validation at
// checkout. Message is the user-facing reason.
type PromoRejectedError struct {
	Code    string
	Message string
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("promocode %s rejected: %s", e.Code, e.Message)
}

// ValidationError reports malformed checkout input such as missing contact
// fields.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
