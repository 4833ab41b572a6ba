package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// ListFavorites returns the buyer's favorites, including listings that have
// since been sold.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.favorites.List(r.Context(), h.buyerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, f := range favorites {
			e.ObjStart()
			e.FieldStart("listing_id")
			e.Str(f.ListingID.String())
			e.FieldStart("title")
			e.Str(f.Title)
			e.FieldStart("is_active")
			e.Bool(f.IsActive)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// AddFavorite marks a listing as a favorite; duplicates are a no-op.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathUUID(w, r, "listingID")
	if !ok {
		return
	}

	if err := h.favorites.Add(r.Context(), h.buyerID, listingID); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveFavorite unmarks a favorite; absent rows are a silent no-op.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	listingID, ok := pathUUID(w, r, "listingID")
	if !ok {
		return
	}

	if err := h.favorites.Remove(r.Context(), h.buyerID, listingID); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
