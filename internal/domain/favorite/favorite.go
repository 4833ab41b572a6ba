package favorite

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Favorite marks a listing a buyer wants to keep an eye on. Unlike basket
// rows, favorites survive the listing going inactive.
type Favorite struct {
	ListingID uuid.UUID
	Title     string
	IsActive  bool
	AddedAt   time.Time
}

// Repository defines persistence for buyer favorites. Add and Remove are
// idempotent.
type Repository interface {
	List(ctx context.Context, buyerID uuid.UUID) ([]Favorite, error)
	Add(ctx context.Context, buyerID, listingID uuid.UUID) error
	Remove(ctx context.Context, buyerID, listingID uuid.UUID) error
}
