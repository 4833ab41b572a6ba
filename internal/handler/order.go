package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/loppis/internal/domain/order"
)

// ConfirmOrder commits the buyer's basket into an order. 201 with
// {order_id, total_cents} on success; 409 when nothing in the basket is
// eligible; 500 when the atomic commit fails (nothing is left behind, the
// call may be retried and will re-evaluate the basket).
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	conf, err := h.orders.Confirm(r.Context(), h.buyerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order_id")
		e.Str(conf.OrderID.String())
		e.FieldStart("total_cents")
		e.Int64(conf.TotalCents)
		e.ObjEnd()
	})
}

// ListOrders returns the buyer's order history with line items.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), h.buyerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(o.ID.String())
	e.FieldStart("total_cents")
	e.Int64(o.TotalCents)
	e.FieldStart("status")
	e.Str(o.Status)
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("listing_id")
		e.Str(it.ListingID.String())
		e.FieldStart("price_cents")
		e.Int64(it.PriceCents)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
