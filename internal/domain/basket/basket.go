package basket

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Item is one basket row joined against its listing. A row whose listing has
// gone inactive since it was added is "stale": it is hidden from display and
// excluded from order commits, but still cleared when a commit succeeds.
type Item struct {
	ListingID  uuid.UUID
	Title      string
	PriceCents *int64
	City       string
	AddedAt    time.Time
}

// Repository defines persistence operations for a buyer's basket.
//
// Add is idempotent: adding a listing already in the basket is a no-op. Only
// active listings may be added; Add returns listing.ErrNotFound or
// listing.ErrNotActive otherwise. Remove of an absent row is a no-op.
type Repository interface {
	List(ctx context.Context, buyerID uuid.UUID) ([]Item, error)
	Add(ctx context.Context, buyerID, listingID uuid.UUID) error
	Remove(ctx context.Context, buyerID, listingID uuid.UUID) error
}
