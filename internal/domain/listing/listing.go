package listing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested listing does not exist.
var ErrNotFound = errors.New("listing not found")

// ErrNotActive is returned when an operation requires an active listing but
// the listing has already been retired (sold) or deactivated.
var ErrNotActive = errors.New("listing is not active")

// Listing represents a single second-hand item offered on the marketplace.
// PriceCents is nil for free items.
type Listing struct {
	ID         uuid.UUID
	Title      string
	PriceCents *int64
	City       string
	Category   string
	Size       string
	Condition  string
	IsActive   bool
	CreatedAt  time.Time
	Images     []Image
}

// Image is a stored blob path for a listing photo. URL signing for uploads is
// handled outside this service; only the path is persisted here.
type Image struct {
	Position int
	BlobPath string
}

// Filter narrows List results. Zero values mean "no constraint"; Limit <= 0
// falls back to the repository default.
type Filter struct {
	Category string
	City     string
	Limit    int
}

// NewListing holds the fields required to publish a listing.
type NewListing struct {
	Title      string
	PriceCents *int64
	City       string
	Category   string
	Size       string
	Condition  string
}

// Repository defines persistence operations for listings. List returns only
// active listings, newest first.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Listing, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	Create(ctx context.Context, n NewListing) (uuid.UUID, error)
	AddImages(ctx context.Context, id uuid.UUID, paths []string) error
}
