package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/loppis/internal/domain/delivery"
)

// ListDeliveries returns the deliveries for all of the buyer's orders.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.deliveries.ListByBuyer(r.Context(), h.buyerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, d := range deliveries {
			e.ObjStart()
			e.FieldStart("delivery_id")
			e.Str(d.ID.String())
			e.FieldStart("order_id")
			e.Str(d.OrderID.String())
			e.FieldStart("status")
			e.Str(string(d.Status))
			e.FieldStart("comment")
			e.Str(d.Comment)
			e.FieldStart("updated_at")
			e.Str(d.UpdatedAt.UTC().Format(time.RFC3339))
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// UpdateDeliveryStatus advances a delivery along its status machine.
// Violating a transition rule answers 409.
func (h *Handler) UpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var (
		status  string
		comment string
	)
	d := jx.Decode(r.Body, 1024)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			status = v
			return err
		case "comment":
			v, err := d.Str()
			comment = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	next := delivery.Status(status)
	if !next.Valid() {
		writeError(w, http.StatusBadRequest, "unknown delivery status")
		return
	}

	if err := h.deliveries.UpdateStatus(r.Context(), id, next, comment); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
