package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/loppis/internal/domain/delivery"
	"github.com/xenking/loppis/internal/domain/listing"
	"github.com/xenking/loppis/internal/domain/order"
)

// writeJSON encodes the response with fn and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError writes the standard {"code": ..., "message": ...} error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// respondError maps domain errors to HTTP statuses. Anything unrecognized is
// an internal error: logged with its cause, surfaced without it.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNoEligibleItems):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, listing.ErrNotFound):
		writeError(w, http.StatusNotFound, listing.ErrNotFound.Error())
	case errors.Is(err, listing.ErrNotActive):
		writeError(w, http.StatusConflict, listing.ErrNotActive.Error())
	case errors.Is(err, delivery.ErrNotFound):
		writeError(w, http.StatusNotFound, delivery.ErrNotFound.Error())
	default:
		var transitionErr *delivery.InvalidTransitionError
		if errors.As(err, &transitionErr) {
			writeError(w, http.StatusConflict, transitionErr.Error())
			return
		}

		zctx.From(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondBasketAddError collapses unknown and inactive listings into one 409
// so add-to-basket does not leak whether an id ever existed.
func respondBasketAddError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, listing.ErrNotFound) || errors.Is(err, listing.ErrNotActive) {
		writeError(w, http.StatusConflict, "listing not available")
		return
	}
	respondError(w, r, err)
}

// encodeOptInt64 writes *v or null.
func encodeOptInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}
