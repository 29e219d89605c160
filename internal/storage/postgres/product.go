package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatshop-io/chatshop/internal/domain/product"
)

const (
	getProductSQL = `SELECT id, name, price, stock, COALESCE(category_id, 0), active
		FROM products WHERE id = $1`

	getProductsSQL = `SELECT id, name, price, stock, COALESCE(category_id, 0), active
		FROM products WHERE id = ANY($1) ORDER BY id`

	listProductsSQL = `SELECT id, name, price, stock, COALESCE(category_id, 0), active
		FROM products ORDER BY id`

	listCategoriesSQL = `SELECT id, name FROM categories ORDER BY id`

	// Compare-and-adjust: the WHERE clause keeps stock from ever going
	// negative, making concurrent reservations race-safe.
	adjustStockSQL = `UPDATE products SET stock = stock + $2
		WHERE id = $1 AND stock + $2 >= 0`

	getStockSQL = `SELECT stock FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository using the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
}

// AdjustStock changes stock by delta, refusing adjustments that would drive
// it negative.
func (r *ProductRepository) AdjustStock(ctx context.Context, id int64, delta int) error {
	tag, err := r.pool.Exec(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return errors.Wrapf(err, "adjust stock for product %d", id)
	}
	if tag.RowsAffected() == 0 {
		return stockShortfall(ctx, r.pool, id, -delta)
	}
	return nil
}

// stockShortfall builds the structured error for a failed compare-and-adjust,
// distinguishing an unknown product from an actual shortfall.
func stockShortfall(ctx context.Context, q querier, id int64, requested int) error {
	var available int
	if err := q.QueryRow(ctx, getStockSQL, id).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return errors.Wrapf(err, "get stock for product %d", id)
	}
	return &product.InsufficientStockError{
		ProductID: id,
		Available: available,
		Requested: requested,
	}
}

// querier is the subset of pgx querying shared by pools and transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CategoryID, &p.Active)
	return p, err
}
