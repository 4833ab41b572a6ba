package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loppis/internal/domain/listing"
)

const defaultListingLimit = 12

const (
	listListingsSQL = `SELECT id, title, price_cents, city, category, size, condition, is_active, created_at
		FROM listings
		WHERE is_active
		  AND ($1 = '' OR category = $1)
		  AND ($2 = '' OR city = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	getListingSQL = `SELECT id, title, price_cents, city, category, size, condition, is_active, created_at
		FROM listings WHERE id = $1`

	createListingSQL = `INSERT INTO listings (title, price_cents, city, category, size, condition)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	getListingImagesSQL = `SELECT position, blob_path FROM listing_images
		WHERE listing_id = $1 ORDER BY position`

	addListingImageSQL = `INSERT INTO listing_images (listing_id, position, blob_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (listing_id, position) DO UPDATE SET blob_path = EXCLUDED.blob_path`
)

var _ listing.Repository = (*ListingRepository)(nil)

// ListingRepository implements listing.Repository backed by PostgreSQL.
type ListingRepository struct {
	pool *pgxpool.Pool
}

// NewListingRepository returns a ListingRepository that uses the given pool.
func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

// List returns active listings, newest first, applying the optional filters.
func (r *ListingRepository) List(ctx context.Context, f listing.Filter) ([]listing.Listing, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListingLimit
	}

	rows, err := r.pool.Query(ctx, listListingsSQL, f.Category, f.City, limit)
	if err != nil {
		return nil, fmt.Errorf("listing listings: %w", err)
	}
	return pgx.CollectRows(rows, scanListing)
}

// GetByID returns a single listing with its images.
func (r *ListingRepository) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	rows, err := r.pool.Query(ctx, getListingSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting listing %s: %w", id, err)
	}

	l, err := pgx.CollectExactlyOneRow(rows, scanListing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, listing.ErrNotFound
		}
		return nil, fmt.Errorf("getting listing %s: %w", id, err)
	}

	imgRows, err := r.pool.Query(ctx, getListingImagesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting images for listing %s: %w", id, err)
	}
	l.Images, err = pgx.CollectRows(imgRows, func(row pgx.CollectableRow) (listing.Image, error) {
		var img listing.Image
		err := row.Scan(&img.Position, &img.BlobPath)
		return img, err
	})
	if err != nil {
		return nil, fmt.Errorf("collecting images for listing %s: %w", id, err)
	}

	return &l, nil
}

// Create inserts a new active listing and returns its generated id.
func (r *ListingRepository) Create(ctx context.Context, n listing.NewListing) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, createListingSQL,
		n.Title, n.PriceCents, n.City, n.Category, n.Size, n.Condition,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating listing: %w", err)
	}
	return id, nil
}

// AddImages appends image blob paths to a listing, positioned after any
// existing images.
func (r *ListingRepository) AddImages(ctx context.Context, id uuid.UUID, paths []string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking listing %s: %w", id, err)
	}
	if !exists {
		return listing.ErrNotFound
	}

	var next int
	if err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM listing_images WHERE listing_id = $1`, id,
	).Scan(&next); err != nil {
		return fmt.Errorf("next image position for listing %s: %w", id, err)
	}

	for i, p := range paths {
		if _, err := r.pool.Exec(ctx, addListingImageSQL, id, next+i, p); err != nil {
			return fmt.Errorf("adding image to listing %s: %w", id, err)
		}
	}
	return nil
}

func scanListing(row pgx.CollectableRow) (listing.Listing, error) {
	var l listing.Listing
	err := row.Scan(
		&l.ID, &l.Title, &l.PriceCents, &l.City,
		&l.Category, &l.Size, &l.Condition, &l.IsActive, &l.CreatedAt,
	)
	return l, err
}
