// Command seed-db prepares a fresh database for local development: it runs
// migrations, loads the catalog from a JSON file, creates a few sample promo
// codes and registers an admin API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/promo"
	"github.com/chatshop-io/chatshop/internal/storage/postgres"
)

type productJSON struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedPromocodes(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promocodes")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		var categoryID int64
		err := pool.QueryRow(ctx,
			`INSERT INTO categories (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			p.Category,
		).Scan(&categoryID)
		if err != nil {
			return errors.Wrapf(err, "upsert category %q", p.Category)
		}

		_, err = pool.Exec(ctx,
			`INSERT INTO products (name, price, stock, category_id, active)
			 VALUES ($1, $2, $3, $4, TRUE)
			 ON CONFLICT DO NOTHING`,
			p.Name, p.Price, p.Stock, categoryID,
		)
		if err != nil {
			return errors.Wrapf(err, "insert product %q", p.Name)
		}
	}

	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

func seedPromocodes(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewPromoRepository(pool)
	now := time.Now()

	codes := []promo.Promocode{
		{
			Code:      "SAVE10",
			Type:      promo.DiscountPercent,
			Value:     decimal.NewFromInt(10),
			ValidFrom: now,
			ValidTo:   now.AddDate(0, 1, 0),
		},
		{
			Code:      "COFFEE500",
			Type:      promo.DiscountFixed,
			Value:     decimal.NewFromInt(500),
			ValidFrom: now,
			ValidTo:   now.AddDate(0, 1, 0),
		},
	}
	for _, c := range codes {
		if err := repo.Upsert(ctx, c); err != nil {
			return err
		}
	}

	slog.Info("promocodes seeded", slog.Int("count", len(codes)))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	hash := hex.EncodeToString(mac.Sum(nil))

	_, err := pool.Exec(ctx,
		`INSERT INTO api_keys (key_hash, name) VALUES ($1, 'admin')
		 ON CONFLICT (key_hash) DO NOTHING`,
		hash,
	)
	if err != nil {
		return errors.Wrap(err, "insert api key")
	}

	slog.Info("api key seeded")
	return nil
}
