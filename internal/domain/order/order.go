package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// StatusConfirmed is the status every order is created with. Later transitions
// belong to the delivery flow, not to this package.
const StatusConfirmed = "confirmed"

// ErrNoEligibleItems is returned when the buyer's basket is empty or every
// referenced listing has already gone inactive. The buyer should refresh
// their basket; retrying without changing it cannot succeed.
var ErrNoEligibleItems = errors.New("basket is empty or all items are unavailable")

// CommitFailedError wraps a storage failure during the atomic commit
// sequence. The transaction is rolled back wholesale, so no partial order
// state is ever visible; the whole Confirm call is safe to retry, but the
// retry re-derives eligibility from the current basket.
type CommitFailedError struct {
	Cause error
}

func (e *CommitFailedError) Error() string {
	return fmt.Sprintf("order commit failed: %v", e.Cause)
}

func (e *CommitFailedError) Unwrap() error { return e.Cause }

// Order is an immutable record of a completed purchase.
type Order struct {
	ID         uuid.UUID
	BuyerID    uuid.UUID
	TotalCents int64
	Status     string
	CreatedAt  time.Time
	Items      []LineItem
}

// LineItem captures one sold listing with the price observed at commit time.
// The price is never recomputed from the listing afterwards: the listing is
// inactive by then and its price column is informational only.
type LineItem struct {
	ListingID  uuid.UUID
	PriceCents int64
}

// EligibleItem is one basket row whose listing was still active at the
// commit's read. A nil PriceCents marks a free item.
type EligibleItem struct {
	ListingID  uuid.UUID
	PriceCents *int64
}

// Confirmation is the success payload of a commit.
type Confirmation struct {
	OrderID    uuid.UUID
	TotalCents int64
}

// TotalCents sums the eligible item prices, counting free (nil) prices as
// zero.
func TotalCents(items []EligibleItem) int64 {
	var total int64
	for _, it := range items {
		if it.PriceCents != nil {
			total += *it.PriceCents
		}
	}
	return total
}

// Tx is the write side of the commit protocol. All methods run inside one
// store transaction; if any of them fails the transaction is rolled back and
// none of the writes become visible.
//
// EligibleItemsForUpdate must lock the matched listing rows until the
// transaction resolves, so that two commits racing for the same listing are
// serialized by the store: the loser either blocks and then re-reads the
// listing as inactive, or sees it inactive outright.
type Tx interface {
	EligibleItemsForUpdate(ctx context.Context, buyerID uuid.UUID) ([]EligibleItem, error)
	InsertOrder(ctx context.Context, buyerID uuid.UUID, totalCents int64) (uuid.UUID, error)
	InsertDelivery(ctx context.Context, orderID uuid.UUID) error
	InsertLineItems(ctx context.Context, orderID uuid.UUID, items []EligibleItem) error
	RetireListings(ctx context.Context, listingIDs []uuid.UUID) error
	ClearBasket(ctx context.Context, buyerID uuid.UUID) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	// EligibleItems is a plain (non-locking) read of the buyer's basket rows
	// joined against still-active listings.
	EligibleItems(ctx context.Context, buyerID uuid.UUID) ([]EligibleItem, error)

	// InTx runs fn inside a single store transaction, committing when fn
	// returns nil and rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ListByBuyer returns the buyer's orders, newest first, with line items.
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]Order, error)
}
