package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service is the order commit engine. It converts a buyer's eligible basket
// contents into a durable order with all-or-nothing semantics; all mutual
// exclusion between racing commits is delegated to the store's transaction
// isolation (see Tx), no in-process locks are held and no listing state is
// cached across invocations.
type Service struct {
	orders Repository
}

// NewService creates the commit engine on top of the given repository.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// Confirm turns buyerID's basket into an order.
//
// A non-locking pre-read answers the empty/ineligible case without opening a
// write transaction. Otherwise one transaction performs, in order: a locked
// re-read of eligibility (basket rows joined against active listings, listing
// rows locked until commit), order insert, delivery insert, line item
// inserts copying the locked read's prices, listing retirement for exactly
// the eligible set, and deletion of the buyer's entire basket including
// stale rows that were excluded from the order.
//
// Failures before the transaction and inside it both surface as
// *CommitFailedError unless the basket turned out (or turned) empty, which
// is ErrNoEligibleItems. Retrying after a CommitFailedError is safe but is
// not a resumption: eligibility is re-derived from current state, so a retry
// may produce a smaller order if other buyers bought items in between.
func (s *Service) Confirm(ctx context.Context, buyerID uuid.UUID) (Confirmation, error) {
	eligible, err := s.orders.EligibleItems(ctx, buyerID)
	if err != nil {
		return Confirmation{}, &CommitFailedError{Cause: errors.Wrap(err, "read basket")}
	}
	if len(eligible) == 0 {
		return Confirmation{}, ErrNoEligibleItems
	}

	var conf Confirmation
	err = s.orders.InTx(ctx, func(tx Tx) error {
		// Re-derive eligibility under row locks: listings sold by a racing
		// commit since the pre-read drop out here, not at write time.
		items, err := tx.EligibleItemsForUpdate(ctx, buyerID)
		if err != nil {
			return errors.Wrap(err, "read eligible items")
		}
		if len(items) == 0 {
			return ErrNoEligibleItems
		}

		total := TotalCents(items)

		orderID, err := tx.InsertOrder(ctx, buyerID, total)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.InsertDelivery(ctx, orderID); err != nil {
			return errors.Wrap(err, "insert delivery")
		}
		if err := tx.InsertLineItems(ctx, orderID, items); err != nil {
			return errors.Wrap(err, "insert line items")
		}

		ids := make([]uuid.UUID, len(items))
		for i, it := range items {
			ids[i] = it.ListingID
		}
		if err := tx.RetireListings(ctx, ids); err != nil {
			return errors.Wrap(err, "retire listings")
		}
		if err := tx.ClearBasket(ctx, buyerID); err != nil {
			return errors.Wrap(err, "clear basket")
		}

		conf = Confirmation{OrderID: orderID, TotalCents: total}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNoEligibleItems) {
			return Confirmation{}, ErrNoEligibleItems
		}
		return Confirmation{}, &CommitFailedError{Cause: err}
	}

	return conf, nil
}

// List returns the buyer's order history, newest first.
func (s *Service) List(ctx context.Context, buyerID uuid.UUID) ([]Order, error) {
	orders, err := s.orders.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}
