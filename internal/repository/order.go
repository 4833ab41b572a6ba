package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loppis/internal/domain/order"
)

const (
	// FOR UPDATE OF l locks the listing rows at read time, so a racing commit
	// for the same listing blocks here until this transaction resolves and
	// then re-evaluates is_active. Read-committed without these locks would
	// allow both commits to observe the listing active.
	eligibleItemsForUpdateSQL = `SELECT l.id, l.price_cents
		FROM basket_items bi
		JOIN listings l ON l.id = bi.listing_id
		WHERE bi.buyer_id = $1 AND l.is_active
		ORDER BY l.id
		FOR UPDATE OF l`

	eligibleItemsSQL = `SELECT l.id, l.price_cents
		FROM basket_items bi
		JOIN listings l ON l.id = bi.listing_id
		WHERE bi.buyer_id = $1 AND l.is_active`

	insertOrderSQL = `INSERT INTO orders (buyer_id, total_cents, status)
		VALUES ($1, $2, $3)
		RETURNING id`

	insertDeliverySQL = `INSERT INTO deliveries (order_id, status) VALUES ($1, 'pending')`

	retireListingsSQL = `UPDATE listings SET is_active = FALSE WHERE id = ANY($1)`

	clearBasketSQL = `DELETE FROM basket_items WHERE buyer_id = $1`

	listOrdersSQL = `SELECT id, buyer_id, total_cents, status, created_at
		FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`

	listOrderItemsSQL = `SELECT order_id, listing_id, price_cents
		FROM order_items WHERE order_id = ANY($1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// commit protocol runs inside a single pgx transaction with listing rows
// locked at the eligibility read.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// EligibleItems is the non-locking eligibility pre-read.
func (r *OrderRepository) EligibleItems(ctx context.Context, buyerID uuid.UUID) ([]order.EligibleItem, error) {
	rows, err := r.pool.Query(ctx, eligibleItemsSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("reading eligible items for buyer %s: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, scanEligibleItem)
}

// InTx runs fn inside one transaction. Any error from fn, or from the final
// commit, rolls back every write made through the transaction.
func (r *OrderRepository) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&orderTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListByBuyer returns the buyer's orders, newest first, with line items.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for buyer %s: %w", buyerID, err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var o order.Order
		err := row.Scan(&o.ID, &o.BuyerID, &o.TotalCents, &o.Status, &o.CreatedAt)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("collecting orders for buyer %s: %w", buyerID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]uuid.UUID, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	itemRows, err := r.pool.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID uuid.UUID
			item    order.LineItem
		)
		if err := itemRows.Scan(&orderID, &item.ListingID, &item.PriceCents); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("reading order items: %w", err)
	}

	return orders, nil
}

var _ order.Tx = (*orderTx)(nil)

// orderTx implements the commit protocol's write side over a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) EligibleItemsForUpdate(ctx context.Context, buyerID uuid.UUID) ([]order.EligibleItem, error) {
	rows, err := t.tx.Query(ctx, eligibleItemsForUpdateSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("locking eligible items for buyer %s: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, scanEligibleItem)
}

func (t *orderTx) InsertOrder(ctx context.Context, buyerID uuid.UUID, totalCents int64) (uuid.UUID, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, insertOrderSQL, buyerID, totalCents, order.StatusConfirmed).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting order: %w", err)
	}
	return id, nil
}

func (t *orderTx) InsertDelivery(ctx context.Context, orderID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, insertDeliverySQL, orderID); err != nil {
		return fmt.Errorf("inserting delivery for order %s: %w", orderID, err)
	}
	return nil
}

func (t *orderTx) InsertLineItems(ctx context.Context, orderID uuid.UUID, items []order.EligibleItem) error {
	n, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "listing_id", "price_cents"},
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			var price int64
			if items[i].PriceCents != nil {
				price = *items[i].PriceCents
			}
			return []any{orderID, items[i].ListingID, price}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("inserting line items for order %s: %w", orderID, err)
	}
	if n != int64(len(items)) {
		return fmt.Errorf("inserted %d of %d line items for order %s", n, len(items), orderID)
	}
	return nil
}

func (t *orderTx) RetireListings(ctx context.Context, listingIDs []uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, retireListingsSQL, listingIDs); err != nil {
		return fmt.Errorf("retiring listings: %w", err)
	}
	return nil
}

func (t *orderTx) ClearBasket(ctx context.Context, buyerID uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, clearBasketSQL, buyerID); err != nil {
		return fmt.Errorf("clearing basket for buyer %s: %w", buyerID, err)
	}
	return nil
}

func scanEligibleItem(row pgx.CollectableRow) (order.EligibleItem, error) {
	var it order.EligibleItem
	err := row.Scan(&it.ListingID, &it.PriceCents)
	return it, err
}
