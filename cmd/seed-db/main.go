package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/auth"
	"github.com/xenking/posledger/internal/domain/discount"
	"github.com/xenking/posledger/internal/domain/menu"
	"github.com/xenking/posledger/internal/handler"
	"github.com/xenking/posledger/internal/storage/postgres"
)

type menuItemJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	Available bool            `json:"available"`
}

type options struct {
	databaseURL string
	menuFile    string
	apiKey      string
	pepper      string
	userID      string
	role        string
	jwtSecret   string
	tokenTTL    time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or POS_SEED_API_KEY env)")
	flag.StringVar(&opts.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.StringVar(&opts.userID, "user-id", "owner", "user the seeded API key authenticates as")
	flag.StringVar(&opts.role, "role", string(auth.RoleOwner), "role of the seeded API key: cashier, supervisor or owner")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "when set, print a bearer token for the seeded user (or POS_JWT_SECRET env)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 12*time.Hour, "lifetime of the printed bearer token")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("POS_SEED_API_KEY")
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or POS_SEED_API_KEY")
		os.Exit(1)
	}
	if opts.pepper == "" {
		opts.pepper = os.Getenv("POS_API_KEY_PEPPER")
	}
	if opts.jwtSecret == "" {
		opts.jwtSecret = os.Getenv("POS_JWT_SECRET")
	}
	if !auth.Role(opts.role).Valid() {
		slog.Error("invalid role", slog.String("role", opts.role))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, postgres.NewMenuRepository(pool), opts.menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if err := seedDiscounts(ctx, postgres.NewDiscountRepository(pool)); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	p := auth.Principal{UserID: opts.userID, Role: auth.Role(opts.role)}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), opts.apiKey, opts.pepper, p); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	if opts.jwtSecret != "" {
		token, err := handler.IssueToken([]byte(opts.jwtSecret), p, opts.tokenTTL)
		if err != nil {
			return errors.Wrap(err, "issue token")
		}
		fmt.Println(token)
	}

	return nil
}

func seedMenu(ctx context.Context, repo *postgres.MenuRepository, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	var items []menuItemJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("upserting menu items", slog.Int("count", len(items)))

	for _, it := range items {
		if err := repo.Upsert(ctx, menu.Item{
			ID:        it.ID,
			Name:      it.Name,
			Price:     it.Price,
			Category:  it.Category,
			Available: it.Available,
		}); err != nil {
			return errors.Wrapf(err, "upsert menu item %s", it.ID)
		}

		slog.Info("upserted menu item", slog.String("id", it.ID), slog.String("name", it.Name))
	}

	return nil
}

func seedDiscounts(ctx context.Context, repo *postgres.DiscountRepository) error {
	slog.Info("seeding discounts")

	minAmount := decimal.NewFromInt(20)
	discounts := []discount.Discount{
		{
			ID:     "happy-hour",
			Name:   "Happy hour: 10% off",
			Type:   discount.TypePercentage,
			Value:  decimal.NewFromInt(10),
			Active: true,
		},
		{
			ID:        "five-off-twenty",
			Name:      "5.00 off orders of 20.00 or more",
			Type:      discount.TypeFixedAmount,
			Value:     decimal.NewFromInt(5),
			Active:    true,
			MinAmount: &minAmount,
		},
	}

	for _, d := range discounts {
		if err := repo.Upsert(ctx, d); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.ID)
		}

		slog.Info("upserted discount", slog.String("id", d.ID), slog.String("name", d.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string, p auth.Principal) error {
	slog.Info("seeding API key", slog.String("user_id", p.UserID), slog.String("role", string(p.Role)))

	id := "seed-" + p.UserID
	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      id,
		KeyHash: handler.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Seeded " + string(p.Role) + " key",
		UserID:  p.UserID,
		Role:    p.Role,
	}); err != nil {
		return errors.Wrap(err, "upsert API key")
	}

	slog.Info("upserted API key", slog.String("id", id))

	return nil
}
