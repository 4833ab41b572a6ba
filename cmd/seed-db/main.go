package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loppis/internal/repository"
)

type listingJSON struct {
	Title      string   `json:"title"`
	PriceCents *int64   `json:"price_cents"`
	City       string   `json:"city"`
	Category   string   `json:"category"`
	Size       string   `json:"size"`
	Condition  string   `json:"condition"`
	Images     []string `json:"images"`
}

const (
	insertListingSQL = `INSERT INTO listings (title, price_cents, city, category, size, condition)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (SELECT 1 FROM listings WHERE title = $1 AND city = $3)
		RETURNING id`

	insertImageSQL = `INSERT INTO listing_images (listing_id, position, blob_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (listing_id, position) DO UPDATE SET blob_path = EXCLUDED.blob_path`
)

func main() {
	var (
		databaseURL  string
		listingsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&listingsFile, "listings-file", "db/seed/listings.json", "path to listings JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, listingsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, listingsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedListings(ctx, pool, listingsFile); err != nil {
		return errors.Wrap(err, "seed listings")
	}

	return nil
}

// seedListings inserts the seed listings, skipping any (title, city) pair that
// already exists so re-running the seeder is safe.
func seedListings(ctx context.Context, pool *pgxpool.Pool, listingsFile string) error {
	slog.Info("reading listings file", slog.String("path", listingsFile))

	data, err := os.ReadFile(listingsFile)
	if err != nil {
		return errors.Wrap(err, "read listings file")
	}

	var listings []listingJSON
	if err := json.Unmarshal(data, &listings); err != nil {
		return errors.Wrap(err, "parse listings JSON")
	}

	slog.Info("inserting listings", slog.Int("count", len(listings)))

	for _, l := range listings {
		var id uuid.UUID
		err := pool.QueryRow(ctx, insertListingSQL,
			l.Title, l.PriceCents, l.City, l.Category, l.Size, l.Condition,
		).Scan(&id)
		if err != nil {
			// No row returned means the listing already exists; skip it.
			if errors.Is(err, pgx.ErrNoRows) {
				slog.Info("listing exists, skipping", slog.String("title", l.Title))
				continue
			}
			return errors.Wrapf(err, "insert listing %q", l.Title)
		}

		for i, path := range l.Images {
			if _, err := pool.Exec(ctx, insertImageSQL, id, i, path); err != nil {
				return errors.Wrapf(err, "insert image for listing %q", l.Title)
			}
		}

		slog.Info("inserted listing", slog.String("id", id.String()), slog.String("title", l.Title))
	}

	return nil
}
