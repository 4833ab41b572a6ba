package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested delivery does not exist.
var ErrNotFound = errors.New("delivery not found")

// Status is the delivery lifecycle state. Transitions are one-directional:
// pending -> in_progress -> {delivered, canceled, failed}, with a shortcut
// from pending straight to canceled for orders called off before pickup is
// arranged. Terminal states never change again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDelivered  Status = "delivered"
	StatusCanceled   Status = "canceled"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known delivery status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDelivered, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine allows moving from s
// to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCanceled
	case StatusInProgress:
		return next.Terminal()
	}
	return false
}

// InvalidTransitionError reports a rejected delivery status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("delivery status cannot change from %s to %s", e.From, e.To)
}

// Delivery tracks fulfillment of a single order. Exactly one delivery row is
// created per order, in the same transaction as the order itself.
type Delivery struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Status    Status
	Comment   string
	UpdatedAt time.Time
}

// Repository defines persistence operations for deliveries. UpdateStatus
// enforces the transition rules above and returns *InvalidTransitionError
// when they are violated.
type Repository interface {
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]Delivery, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, next Status, comment string) error
}
