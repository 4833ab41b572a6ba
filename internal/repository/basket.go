package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loppis/internal/domain/basket"
	"github.com/xenking/loppis/internal/domain/listing"
)

const (
	// Stale rows (listing gone inactive) are hidden from display but kept in
	// the table; a successful order commit clears them together with the rest.
	listBasketSQL = `SELECT bi.listing_id, l.title, l.price_cents, l.city, bi.added_at
		FROM basket_items bi
		JOIN listings l ON l.id = bi.listing_id
		WHERE bi.buyer_id = $1 AND l.is_active
		ORDER BY bi.added_at DESC`

	checkListingActiveSQL = `SELECT is_active FROM listings WHERE id = $1`

	addBasketItemSQL = `INSERT INTO basket_items (buyer_id, listing_id) VALUES ($1, $2)
		ON CONFLICT (buyer_id, listing_id) DO NOTHING`

	removeBasketItemSQL = `DELETE FROM basket_items WHERE buyer_id = $1 AND listing_id = $2`
)

var _ basket.Repository = (*BasketRepository)(nil)

// BasketRepository implements basket.Repository backed by PostgreSQL.
type BasketRepository struct {
	pool *pgxpool.Pool
}

// NewBasketRepository returns a BasketRepository that uses the given pool.
func NewBasketRepository(pool *pgxpool.Pool) *BasketRepository {
	return &BasketRepository{pool: pool}
}

// List returns the buyer's basket joined against active listings.
func (r *BasketRepository) List(ctx context.Context, buyerID uuid.UUID) ([]basket.Item, error) {
	rows, err := r.pool.Query(ctx, listBasketSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("listing basket for buyer %s: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (basket.Item, error) {
		var it basket.Item
		err := row.Scan(&it.ListingID, &it.Title, &it.PriceCents, &it.City, &it.AddedAt)
		return it, err
	})
}

// Add puts an active listing into the buyer's basket. Adding the same listing
// twice is a no-op.
func (r *BasketRepository) Add(ctx context.Context, buyerID, listingID uuid.UUID) error {
	var active bool
	err := r.pool.QueryRow(ctx, checkListingActiveSQL, listingID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return listing.ErrNotFound
		}
		return fmt.Errorf("checking listing %s: %w", listingID, err)
	}
	if !active {
		return listing.ErrNotActive
	}

	if _, err := r.pool.Exec(ctx, addBasketItemSQL, buyerID, listingID); err != nil {
		return fmt.Errorf("adding listing %s to basket: %w", listingID, err)
	}
	return nil
}

// Remove deletes a basket row; removing an absent row is a no-op.
func (r *BasketRepository) Remove(ctx context.Context, buyerID, listingID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, removeBasketItemSQL, buyerID, listingID); err != nil {
		return fmt.Errorf("removing listing %s from basket: %w", listingID, err)
	}
	return nil
}
