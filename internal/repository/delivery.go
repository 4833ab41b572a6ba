package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/loppis/internal/domain/delivery"
)

const (
	listDeliveriesSQL = `SELECT d.id, d.order_id, d.status, d.comment, d.updated_at
		FROM deliveries d
		JOIN orders o ON o.id = d.order_id
		WHERE o.buyer_id = $1
		ORDER BY d.updated_at DESC`

	getDeliveryStatusSQL = `SELECT status FROM deliveries WHERE id = $1 FOR UPDATE`

	updateDeliverySQL = `UPDATE deliveries SET status = $2, comment = $3, updated_at = now()
		WHERE id = $1`
)

var _ delivery.Repository = (*DeliveryRepository)(nil)

// DeliveryRepository implements delivery.Repository backed by PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository returns a DeliveryRepository that uses the given pool.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// ListByBuyer returns deliveries for all of the buyer's orders.
func (r *DeliveryRepository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]delivery.Delivery, error) {
	rows, err := r.pool.Query(ctx, listDeliveriesSQL, buyerID)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries for buyer %s: %w", buyerID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (delivery.Delivery, error) {
		var d delivery.Delivery
		err := row.Scan(&d.ID, &d.OrderID, &d.Status, &d.Comment, &d.UpdatedAt)
		return d, err
	})
}

// UpdateStatus moves a delivery to the next status, enforcing the transition
// rules. The current status is read under a row lock so concurrent updates
// serialize instead of both observing the same predecessor.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, next delivery.Status, comment string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current delivery.Status
	if err := tx.QueryRow(ctx, getDeliveryStatusSQL, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return delivery.ErrNotFound
		}
		return fmt.Errorf("reading delivery %s: %w", id, err)
	}

	if !current.CanTransitionTo(next) {
		return &delivery.InvalidTransitionError{From: current, To: next}
	}

	if _, err := tx.Exec(ctx, updateDeliverySQL, id, next, comment); err != nil {
		return fmt.Errorf("updating delivery %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delivery update: %w", err)
	}
	return nil
}
