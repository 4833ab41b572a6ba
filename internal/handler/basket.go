package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// GetBasket returns the buyer's basket joined against active listings.
// Stale rows are hidden from the response.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	items, err := h.baskets.List(r.Context(), h.buyerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, it := range items {
			e.ObjStart()
			e.FieldStart("listing_id")
			e.Str(it.ListingID.String())
			e.FieldStart("title")
			e.Str(it.Title)
			e.FieldStart("price_cents")
			encodeOptInt64(e, it.PriceCents)
			e.FieldStart("city")
			e.Str(it.City)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// AddToBasket puts an active listing into the basket. Inactive and unknown
// listings both answer 409, matching the "listing not available" contract.
func (h *Handler) AddToBasket(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathUUID(w, r, "listingID")
	if !ok {
		return
	}

	if err := h.baskets.Add(r.Context(), h.buyerID, listingID); err != nil {
		respondBasketAddError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromBasket deletes a basket row; absent rows are a silent no-op.
func (h *Handler) RemoveFromBasket(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathUUID(w, r, "listingID")
	if !ok {
		return
	}

	if err := h.baskets.Remove(r.Context(), h.buyerID, listingID); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
