package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loppis/internal/domain/favorite"
	"github.com/xenking/loppis/internal/domain/listing"
)

const (
	listFavoritesSQL = `SELECT f.listing_id, l.title, l.is_active, f.added_at
		FROM favorites f
		JOIN listings l ON l.id = f.listing_id
		WHERE f.buyer_id = $1
		ORDER BY f.added_at DESC`

	checkListingExistsSQL = `SELECT 1 FROM listings WHERE id = $1`

	addFavoriteSQL = `INSERT INTO favorites (buyer_id, listing_id) VALUES ($1, $2)
		ON CONFLICT (buyer_id, listing_id) DO NOTHING`

	removeFavoriteSQL = `DELETE FROM favorites WHERE buyer_id = $1 AND listing_id = $2`
)

var _ favorite.Repository = (*FavoriteRepository)(nil)

// FavoriteRepository implements favorite.Repository backed by PostgreSQL.
type FavoriteRepository struct {
	pool *pgxpool.Pool
}

// NewFavoriteRepository returns a FavoriteRepository that uses the given pool.
func NewFavoriteRepository(pool *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{pool: pool}
}

// List returns the buyer's favorites, inactive listings included.
func (r *FavoriteRepository) List(ctx context.Context, buyerID uuid.UUID) ([]favorite.Favorite, error) {
	rows, err := r.pool.Query(ctx, listFavoritesSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("listing favorites for buyer %s: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (favorite.Favorite, error) {
		var f favorite.Favorite
		err := row.Scan(&f.ListingID, &f.Title, &f.IsActive, &f.AddedAt)
		return f, err
	})
}

// Add marks a listing as a favorite; duplicates are a no-op. Unlike the
// basket, inactive listings may still be favorited.
func (r *FavoriteRepository) Add(ctx context.Context, buyerID, listingID uuid.UUID) error {
	var one int
	err := r.pool.QueryRow(ctx, checkListingExistsSQL, listingID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return listing.ErrNotFound
		}
		return fmt.Errorf("checking listing %s: %w", listingID, err)
	}

	if _, err := r.pool.Exec(ctx, addFavoriteSQL, buyerID, listingID); err != nil {
		return fmt.Errorf("adding favorite %s: %w", listingID, err)
	}
	return nil
}

// Remove unmarks a favorite; removing an absent row is a no-op.
func (r *FavoriteRepository) Remove(ctx context.Context, buyerID, listingID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, removeFavoriteSQL, buyerID, listingID); err != nil {
		return fmt.Errorf("removing favorite %s: %w", listingID, err)
	}
	return nil
}
