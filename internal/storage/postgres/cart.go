package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatshop-io/chatshop/internal/domain/cart"
)

const (
	cartLinesSQL = `SELECT product_id, qty FROM cart_items
		WHERE user_id = $1 ORDER BY added_at, product_id`

	cartUpsertSQL = `INSERT INTO cart_items (user_id, product_id, qty)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET qty = EXCLUDED.qty`

	cartDeleteSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	cartClearSQL = `DELETE FROM cart_items WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository using the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Lines(ctx context.Context, userID int64) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, cartLinesSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "load cart for user %d", userID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Qty)
		return l, err
	})
}

func (r *CartRepository) Upsert(ctx context.Context, userID int64, line cart.Line) error {
	if _, err := r.pool.Exec(ctx, cartUpsertSQL, userID, line.ProductID, line.Qty); err != nil {
		return errors.Wrapf(err, "upsert cart line for user %d", userID)
	}
	return nil
}

func (r *CartRepository) Delete(ctx context.Context, userID, productID int64) error {
	if _, err := r.pool.Exec(ctx, cartDeleteSQL, userID, productID); err != nil {
		return errors.Wrapf(err, "delete cart line for user %d", userID)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx, cartClearSQL, userID); err != nil {
		return errors.Wrapf(err, "clear cart for user %d", userID)
	}
	return nil
}
