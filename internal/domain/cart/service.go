package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/chatshop-io/chatshop/internal/domain/product"
	"github.com/chatshop-io/chatshop/pkg/keymutex"
)

// Service maintains per-user carts. All mutations for one user are serialized
// through a shared keyed mutex so a user cannot, for example, add an item and
// check out concurrently. The service never touches product stock; stock is
// reserved only at checkout by the order service.
type Service struct {
	carts    Repository
	products product.Repository
	users    *keymutex.KeyMutex
}

// NewService creates a cart Service. The keyed mutex is shared with the order
// service so cart mutation and checkout for one user exclude each other.
func NewService(carts Repository, products product.Repository, users *keymutex.KeyMutex) *Service {
	return &Service{
		carts:    carts,
		products: products,
		users:    users,
	}
}

// Get loads the user's cart and re-resolves every line against current
// product data, so price changes are reflected before checkout. Lines whose
// product has been deactivated (or deleted) are returned with Unavailable set
// instead of being silently dropped.
func (s *Service) Get(ctx context.Context, userID int64) (*Cart, error) {
	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart lines")
	}
	return s.resolve(ctx, userID, lines)
}

// AddItem puts qty units of a product into the cart. If the product is
// already in the cart the quantities are summed. The resulting quantity must
// not exceed current stock.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, &ValidationError{Reason: "quantity must be a positive integer"}
	}

	s.users.Lock(userID)
	defer s.users.Unlock(userID)

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", productID)
	}

	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart lines")
	}

	existing := 0
	for _, l := range lines {
		if l.ProductID == productID {
			existing = l.Qty
			break
		}
	}

	wanted := existing + qty
	available := 0
	if p.Active {
		available = p.Stock
	}
	if wanted > available {
		return nil, &product.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: wanted,
		}
	}

	if err := s.carts.Upsert(ctx, userID, Line{ProductID: productID, Qty: wanted}); err != nil {
		return nil, errors.Wrap(err, "upsert cart line")
	}
	return s.Get(ctx, userID)
}

// UpdateItem sets an existing line's quantity. qty == 0 removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID int64, qty int) (*Cart, error) {
	if qty < 0 {
		return nil, &ValidationError{Reason: "quantity must not be negative"}
	}

	s.users.Lock(userID)
	defer s.users.Unlock(userID)

	lines, err := s.carts.Lines(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart lines")
	}

	found := false
	for _, l := range lines {
		if l.ProductID == productID {
			found = true
			break
		}
	}
	if !found {
		return nil, &ItemNotFoundError{ProductID: productID}
	}

	if qty == 0 {
		if err := s.carts.Delete(ctx, userID, productID); err != nil {
			return nil, errors.Wrap(err, "delete cart line")
		}
		return s.Get(ctx, userID)
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", productID)
	}
	available := 0
	if p.Active {
		available = p.Stock
	}
	if qty > available {
		return nil, &product.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: qty,
		}
	}

	if err := s.carts.Upsert(ctx, userID, Line{ProductID: productID, Qty: qty}); err != nil {
		return nil, errors.Wrap(err, "upsert cart line")
	}
	return s.Get(ctx, userID)
}

// RemoveItem deletes a line. Removing an absent line is a no-op.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) error {
	s.users.Lock(userID)
	defer s.users.Unlock(userID)

	if err := s.carts.Delete(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	return nil
}

// Clear removes all lines. Clearing an empty cart is a no-op.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	s.users.Lock(userID)
	defer s.users.Unlock(userID)

	if err := s.carts.Clear(ctx, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// CheckStock reports whether qty units of a product are currently in stock.
// Read-only; it neither mutates nor reserves anything.
func (s *Service) CheckStock(ctx context.Context, productID int64, qty int) (bool, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return false, errors.Wrapf(err, "get product %d", productID)
	}
	return p.Active && p.Stock >= qty, nil
}

func (s *Service) resolve(ctx context.Context, userID int64, lines []Line) (*Cart, error) {
	c := &Cart{UserID: userID, Items: make([]Item, 0, len(lines))}
	if len(lines) == 0 {
		return c, nil
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolve products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, l := range lines {
		item := Item{ProductID: l.ProductID, Qty: l.Qty}
		if p, ok := byID[l.ProductID]; ok {
			item.Name = p.Name
			item.Price = p.Price
			item.Stock = p.Stock
			item.Unavailable = !p.Active
		} else {
			item.Unavailable = true
		}
		c.Items = append(c.Items, item)
	}
	return c, nil
}
