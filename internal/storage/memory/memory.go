// Package memory provides in-memory implementations of the storage ports.
// They back unit tests and local development runs; semantics (atomic
// checkout, compare-and-decrement stock, ordering) mirror the Postgres
// implementations.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatshop-io/chatshop/internal/domain/auth"
	"github.com/chatshop-io/chatshop/internal/domain/cart"
	"github.com/chatshop-io/chatshop/internal/domain/order"
	"github.com/chatshop-io/chatshop/internal/domain/product"
	"github.com/chatshop-io/chatshop/internal/domain/promo"
)

// Store is a single in-memory database shared by all repository views, so
// the checkout transaction can span products, carts, orders and promo usage
// under one lock.
type Store struct {
	mu sync.Mutex

	products   map[int64]*product.Product
	categories []product.Category

	carts map[int64][]cart.Line // keyed by user, insertion-ordered

	orders     map[int64]*order.Order
	orderItems map[int64][]order.Item
	nextOrder  int64
	daySeq     map[string]int64

	promos     map[string]*promo.Promocode // keyed by upper-cased code
	promoUsage map[string]map[int64]bool

	apikeys map[string]*auth.APIKey
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		products:   make(map[int64]*product.Product),
		carts:      make(map[int64][]cart.Line),
		orders:     make(map[int64]*order.Order),
		orderItems: make(map[int64][]order.Item),
		daySeq:     make(map[string]int64),
		promos:     make(map[string]*promo.Promocode),
		promoUsage: make(map[string]map[int64]bool),
		apikeys:    make(map[string]*auth.APIKey),
	}
}

// SeedProduct inserts or replaces a product.
func (s *Store) SeedProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

// SeedCategory appends a category.
func (s *Store) SeedCategory(c product.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// SeedPromocode inserts or replaces a promo code.
func (s *Store) SeedPromocode(p promo.Promocode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.promos[strings.ToUpper(p.Code)] = &cp
}

// SeedAPIKey inserts an API key record keyed by its hash.
func (s *Store) SeedAPIKey(k auth.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck := k
	s.apikeys[k.KeyHash] = &ck
}

// Stock returns the current stock of a product. Test helper.
func (s *Store) Stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		return p.Stock
	}
	return 0
}

// --- product.Repository ---

// Products returns the product repository view of the store.
func (s *Store) Products() product.Repository { return (*productRepo)(s) }

type productRepo Store

func (r *productRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *productRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *productRepo) List(_ context.Context) ([]product.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]product.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *productRepo) ListCategories(_ context.Context) ([]product.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]product.Category, len(r.categories))
	copy(out, r.categories)
	return out, nil
}

func (r *productRepo) AdjustStock(_ context.Context, id int64, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return product.ErrNotFound
	}
	next := p.Stock + delta
	if next < 0 {
		return &product.InsufficientStockError{
			ProductID: id,
			Available: p.Stock,
			Requested: -delta,
		}
	}
	p.Stock = next
	return nil
}

// --- cart.Repository ---

// Carts returns the cart repository view of the store.
func (s *Store) Carts() cart.Repository { return (*cartRepo)(s) }

type cartRepo Store

func (r *cartRepo) Lines(_ context.Context, userID int64) ([]cart.Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := r.carts[userID]
	out := make([]cart.Line, len(lines))
	copy(out, lines)
	return out, nil
}

func (r *cartRepo) Upsert(_ context.Context, userID int64, line cart.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := r.carts[userID]
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Qty = line.Qty
			return nil
		}
	}
	r.carts[userID] = append(lines, line)
	return nil
}

func (r *cartRepo) Delete(_ context.Context, userID, productID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lines := r.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			r.carts[userID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *cartRepo) Clear(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	return nil
}

// --- promo.Repository ---

// Promos returns the promo repository view of the store.
func (s *Store) Promos() promo.Repository { return (*promoRepo)(s) }

type promoRepo Store

func (r *promoRepo) FindByCode(_ context.Context, code string) (*promo.Promocode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.promos[strings.ToUpper(code)]
	if !ok {
		return nil, promo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *promoRepo) UsedBy(_ context.Context, code string, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promoUsage[strings.ToUpper(code)][userID], nil
}

func (r *promoRepo) RecordUsage(_ context.Context, code string, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordUsageLocked(code, userID)
	return nil
}

func (r *promoRepo) recordUsageLocked(code string, userID int64) {
	key := strings.ToUpper(code)
	if r.promoUsage[key] == nil {
		r.promoUsage[key] = make(map[int64]bool)
	}
	r.promoUsage[key][userID] = true
}

// --- order.Repository ---

// Orders returns the order repository view of the store.
func (s *Store) Orders() order.Repository { return (*orderRepo)(s) }

type orderRepo Store

func (r *orderRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *orderRepo) ListByUser(_ context.Context, userID int64) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []order.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *orderRepo) Items(_ context.Context, orderID int64) ([]order.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.orderItems[orderID]
	out := make([]order.Item, len(items))
	copy(out, items)
	return out, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, id int64, from, to order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// --- order.CheckoutStore ---

// Checkouts returns the checkout store view of the store.
func (s *Store) Checkouts() order.CheckoutStore { return (*checkoutStore)(s) }

type checkoutStore Store

// Checkout mirrors the Postgres transaction: every effect happens under one
// lock, and the stock check is atomic with the decrement so two racing
// checkouts for the last unit cannot both succeed.
func (c *checkoutStore) Checkout(_ context.Context, o *order.Order, items []order.Item, promoCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Validate all lines before mutating anything.
	for _, it := range items {
		p, ok := c.products[it.ProductID]
		if !ok || !p.Active {
			return &product.UnavailableError{ProductID: it.ProductID}
		}
		if p.Stock < it.Qty {
			return &product.InsufficientStockError{
				ProductID: it.ProductID,
				Available: p.Stock,
				Requested: it.Qty,
			}
		}
	}

	for _, it := range items {
		c.products[it.ProductID].Stock -= it.Qty
	}

	c.nextOrder++
	o.ID = c.nextOrder
	day := o.CreatedAt.Format("20060102")
	c.daySeq[day]++
	o.Number = order.FormatNumber(o.CreatedAt, c.daySeq[day])

	cp := *o
	c.orders[o.ID] = &cp

	stored := make([]order.Item, len(items))
	for i, it := range items {
		it.ID = int64(i + 1)
		it.OrderID = o.ID
		stored[i] = it
	}
	c.orderItems[o.ID] = stored

	if promoCode != "" {
		(*promoRepo)(c).recordUsageLocked(promoCode, o.UserID)
	}

	delete(c.carts, o.UserID)
	return nil
}

// Cancel mirrors the Postgres cancel transaction: the compare-and-set status
// flip and the restock happen under one lock, so racing cancellations cannot
// release the same stock twice.
func (c *checkoutStore) Cancel(_ context.Context, orderID int64, from order.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = order.StatusCancelled
	o.UpdatedAt = time.Now()

	for _, it := range c.orderItems[orderID] {
		if p, ok := c.products[it.ProductID]; ok {
			p.Stock += it.Qty
		}
	}
	return nil
}

// --- auth.Repository ---

// APIKeys returns the API key repository view of the store.
func (s *Store) APIKeys() auth.Repository { return (*apikeyRepo)(s) }

type apikeyRepo Store

func (r *apikeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.apikeys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	ck := *k
	return &ck, nil
}
