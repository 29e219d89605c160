package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatshop-io/chatshop/internal/domain/order"
	"github.com/chatshop-io/chatshop/internal/domain/product"
)

const (
	getOrderSQL = `SELECT id, user_id, number, status, subtotal, discount, total,
		contact_name, contact_phone, contact_address, payment_method, promo_code,
		created_at, updated_at
		FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, user_id, number, status, subtotal, discount, total,
		contact_name, contact_phone, contact_address, payment_method, promo_code,
		created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	orderItemsSQL = `SELECT id, order_id, product_id, name, price, qty
		FROM order_items WHERE order_id = $1 ORDER BY id`

	// Compare-and-set: no row matches when the status moved since the
	// caller read it, which distinguishes a lost race from a blind write.
	updateStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`

	orderExistsSQL = `SELECT 1 FROM orders WHERE id = $1`

	// Returns every line's quantity to stock in one statement.
	restockOrderSQL = `UPDATE products p SET stock = p.stock + oi.qty
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.product_id = p.id`

	// Reserve one line: the stock predicate makes check and decrement one
	// atomic statement, so concurrent checkouts cannot oversell.
	reserveLineSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND active AND stock >= $2`

	productStateSQL = `SELECT stock, active FROM products WHERE id = $1`

	nextOrderSeqSQL = `INSERT INTO order_counters (day, last) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last = order_counters.last + 1
		RETURNING last`

	insertOrderSQL = `INSERT INTO orders (user_id, number, status, subtotal, discount,
		total, contact_name, contact_phone, contact_address, payment_method, promo_code,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, name, price, qty)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
)

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ order.CheckoutStore = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.CheckoutStore backed
// by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository using the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for user %d", userID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) Items(ctx context.Context, orderID int64) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, orderItemsSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get items for order %d", orderID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Price, &it.Qty)
		return it, err
	})
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, updateStatusSQL, id, from, to)
	if err != nil {
		return errors.Wrapf(err, "update status of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return statusMissReason(ctx, r.pool, id)
	}
	return nil
}

// statusMissReason resolves a zero-row compare-and-set into the precise
// error: the order is gone, or its status moved underneath the caller.
func statusMissReason(ctx context.Context, q querier, id int64) error {
	var one int
	if err := q.QueryRow(ctx, orderExistsSQL, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return errors.Wrapf(err, "get order %d", id)
	}
	return order.ErrStatusConflict
}

// Checkout commits a checkout in one transaction: stock reservation for every
// line, order + item inserts, order number assignment from the per-day
// counter, promo usage, and cart clearing. Any failure rolls the whole unit
// back, so no partial reservation or cleared-but-unordered cart can be
// observed.
func (r *OrderRepository) Checkout(ctx context.Context, o *order.Order, items []order.Item, promoCode string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin checkout tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range items {
		tag, err := tx.Exec(ctx, reserveLineSQL, it.ProductID, it.Qty)
		if err != nil {
			return errors.Wrapf(err, "reserve stock for product %d", it.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return reserveShortfall(ctx, tx, it.ProductID, it.Qty)
		}
	}

	var seq int64
	day := o.CreatedAt.Format("20060102")
	if err := tx.QueryRow(ctx, nextOrderSeqSQL, day).Scan(&seq); err != nil {
		return errors.Wrap(err, "next order sequence")
	}
	o.Number = order.FormatNumber(o.CreatedAt, seq)

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.Number, o.Status, o.Subtotal, o.Discount, o.Total,
		o.Contact.Name, o.Contact.Phone, o.Contact.Address,
		o.PaymentMethod, o.PromoCode, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i := range items {
		items[i].OrderID = o.ID
		err := tx.QueryRow(ctx, insertOrderItemSQL,
			o.ID, items[i].ProductID, items[i].Name, items[i].Price, items[i].Qty,
		).Scan(&items[i].ID)
		if err != nil {
			return errors.Wrap(err, "insert order item")
		}
	}

	if promoCode != "" {
		if _, err := tx.Exec(ctx, recordUsageSQL, promoCode, o.UserID); err != nil {
			return errors.Wrapf(err, "record usage of promocode %q", promoCode)
		}
	}

	if _, err := tx.Exec(ctx, cartClearSQL, o.UserID); err != nil {
		return errors.Wrapf(err, "clear cart for user %d", o.UserID)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit checkout tx")
	}
	return nil
}

// Cancel flips the order to cancelled and restocks its items in one
// transaction. The status write is compare-and-set on the status the caller
// observed, so of any number of racing cancellations exactly one commits the
// flip and the restock; the rest get order.ErrStatusConflict.
func (r *OrderRepository) Cancel(ctx context.Context, orderID int64, from order.Status) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin cancel tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updateStatusSQL, orderID, from, order.StatusCancelled)
	if err != nil {
		return errors.Wrapf(err, "update status of order %d", orderID)
	}
	if tag.RowsAffected() == 0 {
		return statusMissReason(ctx, tx, orderID)
	}

	if _, err := tx.Exec(ctx, restockOrderSQL, orderID); err != nil {
		return errors.Wrapf(err, "restock order %d", orderID)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit cancel tx")
	}
	return nil
}

// reserveShortfall explains a failed reservation: inactive product, unknown
// product, or plain shortfall.
func reserveShortfall(ctx context.Context, tx pgx.Tx, productID int64, requested int) error {
	var (
		stock  int
		active bool
	)
	if err := tx.QueryRow(ctx, productStateSQL, productID).Scan(&stock, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "get product %d", productID)
	}
	if !active {
		return &product.UnavailableError{ProductID: productID}
	}
	return &product.InsufficientStockError{
		ProductID: productID,
		Available: stock,
		Requested: requested,
	}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Number, &status, &o.Subtotal, &o.Discount, &o.Total,
		&o.Contact.Name, &o.Contact.Phone, &o.Contact.Address,
		&o.PaymentMethod, &o.PromoCode, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}
