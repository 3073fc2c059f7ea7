// Command seed-db loads a demo catalog, coupons, a test user with an API key
// and a funded wallet into the database. It is idempotent: reruns upsert.
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

	"github.com/xenking/shoppie-backend/internal/storage/postgres"
)

type productJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Image        string          `json:"image"`
	Quantity     int             `json:"quantity"`
	RegularPrice decimal.Decimal `json:"regular_price"`
	SalePrice    decimal.Decimal `json:"sale_price"`
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
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or SHOP_SEED_API_KEY env)")
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
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedUser(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed user")
	}

	return nil
}

const upsertProductSQL = `INSERT INTO products
	(id, name, category, image, quantity, regular_price, sale_price, active, deleted)
	VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, FALSE)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, category = EXCLUDED.category, image = EXCLUDED.image,
		quantity = EXCLUDED.quantity, regular_price = EXCLUDED.regular_price,
		sale_price = EXCLUDED.sale_price, active = TRUE, deleted = FALSE`

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

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Category, p.Image, p.Quantity, p.RegularPrice, p.SalePrice,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

const upsertCouponSQL = `INSERT INTO coupons
	(id, code, description, discount_type, value, min_purchase, expires_at,
	 usage_limit, per_user_limit, used_count, active, deleted)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, TRUE, FALSE)
	ON CONFLICT (code) DO UPDATE SET
		description = EXCLUDED.description, discount_type = EXCLUDED.discount_type,
		value = EXCLUDED.value, min_purchase = EXCLUDED.min_purchase,
		expires_at = EXCLUDED.expires_at, usage_limit = EXCLUDED.usage_limit,
		per_user_limit = EXCLUDED.per_user_limit, active = TRUE, deleted = FALSE`

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	nextYear := time.Now().AddDate(1, 0, 0)
	one := 1

	coupons := []struct {
		id, code, description, discountType string
		value, minPurchase                  decimal.Decimal
		expiresAt                           time.Time
		usageLimit, perUserLimit            *int
	}{
		{
			id: "coupon-pct10", code: "PCT10",
			description:  "10% off orders over 100",
			discountType: "percentage",
			value:        decimal.NewFromInt(10),
			minPurchase:  decimal.NewFromInt(100),
			expiresAt:    nextYear,
		},
		{
			id: "coupon-flat50", code: "FLAT50",
			description:  "Flat 50 off orders over 300, once per customer",
			discountType: "flat",
			value:        decimal.NewFromInt(50),
			minPurchase:  decimal.NewFromInt(300),
			expiresAt:    nextYear,
			perUserLimit: &one,
		},
	}

	for _, c := range coupons {
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.id, c.code, c.description, c.discountType, c.value, c.minPurchase,
			c.expiresAt, c.usageLimit, c.perUserLimit,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}

		slog.Info("upserted coupon", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}

const (
	upsertUserSQL = `INSERT INTO users (id, name, email, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, user_id, name, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, active = TRUE`

	upsertWalletSQL = `INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`
)

func seedUser(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding demo user, API key and wallet")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	const userID = "demo-user"

	if _, err := pool.Exec(ctx, upsertUserSQL, userID, "Demo User", "demo@example.com"); err != nil {
		return errors.Wrap(err, "upsert demo user")
	}
	if _, err := pool.Exec(ctx, upsertAPIKeySQL, "default", keyHash, userID, "Default test key"); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}
	if _, err := pool.Exec(ctx, upsertWalletSQL, userID, decimal.NewFromInt(1000)); err != nil {
		return errors.Wrap(err, "upsert demo wallet")
	}

	slog.Info("upserted demo user", slog.String("user_id", userID))

	return nil
}
