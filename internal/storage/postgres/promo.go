package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatshop-io/chatshop/internal/domain/promo"
)

const (
	findPromoSQL = `SELECT code, discount_type, discount_value, valid_from, valid_to, is_used
		FROM promocodes WHERE UPPER(code) = UPPER($1)`

	promoUsedBySQL = `SELECT EXISTS (
		SELECT 1 FROM promo_usages WHERE UPPER(code) = UPPER($1) AND user_id = $2)`

	recordUsageSQL = `INSERT INTO promo_usages (code, user_id)
		VALUES (UPPER($1), $2) ON CONFLICT DO NOTHING`

	upsertPromoSQL = `INSERT INTO promocodes (code, discount_type, discount_value, valid_from, valid_to)
		VALUES (UPPER($1), $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository using the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up a promo code case-insensitively.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Promocode, error) {
	rows, err := r.pool.Query(ctx, findPromoSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find promocode %q", code)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromocode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find promocode %q", code)
	}
	return &p, nil
}

func (r *PromoRepository) UsedBy(ctx context.Context, code string, userID int64) (bool, error) {
	var used bool
	if err := r.pool.QueryRow(ctx, promoUsedBySQL, code, userID).Scan(&used); err != nil {
		return false, errors.Wrapf(err, "check usage of promocode %q", code)
	}
	return used, nil
}

func (r *PromoRepository) RecordUsage(ctx context.Context, code string, userID int64) error {
	if _, err := r.pool.Exec(ctx, recordUsageSQL, code, userID); err != nil {
		return errors.Wrapf(err, "record usage of promocode %q", code)
	}
	return nil
}

// Upsert creates or refreshes a promo code. Codes are stored uppercased;
// used by the ingest and seed tooling, not by the serving path.
func (r *PromoRepository) Upsert(ctx context.Context, p promo.Promocode) error {
	_, err := r.pool.Exec(ctx, upsertPromoSQL,
		p.Code, string(p.Type), p.Value, p.ValidFrom, p.ValidTo)
	if err != nil {
		return errors.Wrapf(err, "upsert promocode %q", p.Code)
	}
	return nil
}

func scanPromocode(row pgx.CollectableRow) (promo.Promocode, error) {
	var (
		p   promo.Promocode
		typ string
	)
	err := row.Scan(&p.Code, &typ, &p.Value, &p.ValidFrom, &p.ValidTo, &p.Used)
	p.Type = promo.DiscountType(typ)
	return p, err
}
