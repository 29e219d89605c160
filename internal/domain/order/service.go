package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
	"github.com/chatshop-io/chatshop/internal/domain/product"
	"github.com/chatshop-io/chatshop/internal/domain/promo"
	"github.com/chatshop-io/chatshop/pkg/keymutex"
)

// Service orchestrates checkout and drives the order-status lifecycle. It is
// the only writer of orders and the only component that adjusts product stock.
type Service struct {
	carts     *cart.Service
	discounts *promo.Service
	products  product.Repository
	orders    Repository
	checkout  CheckoutStore
	notifier  Notifier
	users     *keymutex.KeyMutex
	now       func() time.Time
}

// NewService creates an order Service. users must be the same keyed mutex the
// cart service uses, so checkout and cart mutation for one user exclude each
// other.
func NewService(
	carts *cart.Service,
	discounts *promo.Service,
	products product.Repository,
	orders Repository,
	checkout CheckoutStore,
	notifier Notifier,
	users *keymutex.KeyMutex,
) *Service {
	return &Service{
		carts:     carts,
		discounts: discounts,
		products:  products,
		orders:    orders,
		checkout:  checkout,
		notifier:  notifier,
		users:     users,
		now:       time.Now,
	}
}

// CreateRequest holds the checkout input.
type CreateRequest struct {
	UserID        int64
	Contact       Contact
	PaymentMethod string
	PromoCode     string
}

func (r *CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Contact.Name) == "":
		return &ValidationError{Reason: "contact name is required"}
	case strings.TrimSpace(r.Contact.Phone) == "":
		return &ValidationError{Reason: "contact phone is required"}
	case strings.TrimSpace(r.Contact.Address) == "":
		return &ValidationError{Reason: "delivery address is required"}
	case strings.TrimSpace(r.PaymentMethod) == "":
		return &ValidationError{Reason: "payment method is required"}
	}
	return nil
}

// Create turns the user's cart into an order. The whole flow up to and
// including the commit is all-or-nothing: a failure at any step leaves cart,
// stock and order store unchanged. Notifications go out only after the
// commit and never fail the call.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	s.users.Lock(req.UserID)
	defer s.users.Unlock(req.UserID)

	c, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if c.IsEmpty() {
		return nil, &EmptyCartError{UserID: req.UserID}
	}

	// Re-validate every line against live product data. The checkout store
	// repeats the stock check atomically with the decrement; this pass exists
	// to fail fast with precise context before anything is written.
	for _, it := range c.Items {
		if it.Unavailable {
			return nil, &product.UnavailableError{ProductID: it.ProductID}
		}
		if it.Qty > it.Stock {
			return nil, &product.InsufficientStockError{
				ProductID: it.ProductID,
				Available: it.Stock,
				Requested: it.Qty,
			}
		}
	}

	now := s.now()

	promoCode := strings.TrimSpace(req.PromoCode)
	if promoCode != "" {
		res, err := s.discounts.ValidatePromo(ctx, promoCode, now)
		if err != nil {
			return nil, errors.Wrap(err, "validate promocode")
		}
		if !res.Valid {
			return nil, &PromoRejectedError{Code: promoCode, Message: res.Message}
		}
		used, err := s.discounts.CheckUsage(ctx, promoCode, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "check promocode usage")
		}
		if used {
			return nil, &PromoRejectedError{Code: promoCode, Message: "Промокод уже использован"}
		}
	}

	applied, err := s.discounts.ApplyDiscounts(ctx, c, promoCode, now)
	if err != nil {
		return nil, errors.Wrap(err, "apply discounts")
	}
	totals := cart.CalcTotals(c)

	o := &Order{
		UserID:        req.UserID,
		Status:        StatusCreated,
		Subtotal:      totals.Subtotal,
		Discount:      applied.PromoDiscount.Add(applied.AutoDiscount),
		Total:         applied.FinalTotal,
		Contact:       req.Contact,
		PaymentMethod: req.PaymentMethod,
		PromoCode:     promoCode,
		CreatedAt:     now,
	}
	items := make([]Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Qty:       it.Qty,
		}
	}

	// Single atomic unit: order + items insert, stock reservation, promo
	// usage, cart clear. Assigns o.ID and o.Number.
	if err := s.checkout.Checkout(ctx, o, items, promoCode); err != nil {
		return nil, err
	}

	s.notify(ctx, s.notifier.OrderCreated, o, "order created")
	s.notify(ctx, s.notifier.AdminNewOrder, o, "admin new order")

	return o, nil
}

// Get returns the order if it exists and belongs to userID, else nil.
// Ownership is deliberately indistinguishable from non-existence so order IDs
// do not leak across users.
func (s *Service) Get(ctx context.Context, orderID, userID int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get order")
	}
	if o.UserID != userID {
		return nil, nil
	}
	return o, nil
}

// List returns all orders owned by the user, most recent first.
func (s *Service) List(ctx context.Context, userID int64) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Items returns the frozen line items of an order.
func (s *Service) Items(ctx context.Context, orderID int64) ([]Item, error) {
	items, err := s.orders.Items(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order items")
	}
	return items, nil
}

// UpdateStatus moves an order to a new lifecycle status. Inventory is not
// touched here; stock adjustment is exclusive to creation and cancellation.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, &ValidationError{Reason: "unknown order status: " + string(next)}
	}

	// Compare-and-set against the status just read: a concurrent transition
	// surfaces as a conflict and forces a re-read instead of silently
	// overwriting the other writer. Statuses only move toward a terminal
	// state, so the loop cannot spin forever.
	var o *Order
	for {
		var err error
		o, err = s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, errors.Wrap(err, "get order")
		}
		if !o.Status.CanTransition(next) {
			return nil, &InvalidStatusTransitionError{Current: o.Status, Next: next}
		}

		err = s.orders.UpdateStatus(ctx, orderID, o.Status, next)
		if errors.Is(err, ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "update order status")
		}
		break
	}
	o.Status = next
	o.UpdatedAt = s.now()

	s.notify(ctx, s.notifier.StatusChanged, o, "status changed")
	if next == StatusPaid {
		s.notify(ctx, s.notifier.PaymentSucceeded, o, "payment succeeded")
	}

	return o, nil
}

// Cancel cancels the user's order while it is still cancellable (created,
// confirmed or paid), releasing the reserved stock. The status flip and the
// release are one atomic unit in the checkout store, compare-and-set on the
// observed status, so racing cancellations release the stock exactly once.
func (s *Service) Cancel(ctx context.Context, orderID, userID int64) (*Order, error) {
	var o *Order
	for {
		var err error
		o, err = s.Get(ctx, orderID, userID)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, ErrNotFound
		}
		if !o.Status.Cancellable() {
			return nil, &CannotCancelError{Status: o.Status}
		}

		err = s.checkout.Cancel(ctx, orderID, o.Status)
		if errors.Is(err, ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "cancel order")
		}
		break
	}
	o.Status = StatusCancelled
	o.UpdatedAt = s.now()

	s.notify(ctx, s.notifier.StatusChanged, o, "order cancelled")

	return o, nil
}

// ReserveStock decrements stock for every line of an order. Checkout reserves
// inside its own transaction; this entry point exists for recovery tooling,
// with the order's status acting as the guard against double reservation.
func (s *Service) ReserveStock(ctx context.Context, orderID int64) error {
	return s.adjustStock(ctx, orderID, -1)
}

// ReleaseStock returns every line's quantity to stock. Inverse of
// ReserveStock; cancellation releases inside its own atomic unit, this entry
// point serves recovery tooling only.
func (s *Service) ReleaseStock(ctx context.Context, orderID int64) error {
	return s.adjustStock(ctx, orderID, +1)
}

func (s *Service) adjustStock(ctx context.Context, orderID int64, sign int) error {
	items, err := s.orders.Items(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "get order items")
	}
	for _, it := range items {
		if err := s.products.AdjustStock(ctx, it.ProductID, sign*it.Qty); err != nil {
			return errors.Wrapf(err, "adjust stock for product %d", it.ProductID)
		}
	}
	return nil
}

// notify invokes one notifier method, logging and swallowing any failure.
func (s *Service) notify(ctx context.Context, fn func(context.Context, *Order) error, o *Order, event string) {
	if err := fn(ctx, o); err != nil {
		zctx.From(ctx).Warn("Notification failed",
			zap.String("event", event),
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
}
