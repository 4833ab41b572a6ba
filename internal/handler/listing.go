package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/loppis/internal/domain/listing"
)

// ListListings returns active listings, newest first. Supports ?limit=,
// ?category= and ?city= query filters.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := listing.Filter{
		Category: q.Get("category"),
		City:     q.Get("city"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = limit
	}

	listings, err := h.listings.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range listings {
			h.encodeListing(e, &listings[i])
		}
		e.ArrEnd()
	})
}

// GetListing returns one listing with its images.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	l, err := h.listings.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeListing(e, l)
	})
}

// CreateListing publishes a new listing and returns its generated id.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var n listing.NewListing

	d := jx.Decode(r.Body, 4096)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "title":
			v, err := d.Str()
			n.Title = v
			return err
		case "price_cents":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int64()
			n.PriceCents = &v
			return err
		case "city":
			v, err := d.Str()
			n.City = v
			return err
		case "category":
			v, err := d.Str()
			n.Category = v
			return err
		case "size":
			v, err := d.Str()
			n.Size = v
			return err
		case "condition":
			v, err := d.Str()
			n.Condition = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(n.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if n.PriceCents != nil && *n.PriceCents < 0 {
		writeError(w, http.StatusBadRequest, "price_cents must not be negative")
		return
	}

	id, err := h.listings.Create(r.Context(), n)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("listing_id")
		e.Str(id.String())
		e.ObjEnd()
	})
}

// AddListingImages attaches uploaded image blob paths to a listing.
func (h *Handler) AddListingImages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var paths []string
	d := jx.Decode(r.Body, 4096)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "paths" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			p, err := d.Str()
			if err != nil {
				return err
			}
			paths = append(paths, p)
			return nil
		})
	}); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}

	if err := h.listings.AddImages(r.Context(), id, paths); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) encodeListing(e *jx.Encoder, l *listing.Listing) {
	e.ObjStart()
	e.FieldStart("listing_id")
	e.Str(l.ID.String())
	e.FieldStart("title")
	e.Str(l.Title)
	e.FieldStart("price_cents")
	encodeOptInt64(e, l.PriceCents)
	e.FieldStart("is_free")
	e.Bool(l.PriceCents == nil || *l.PriceCents == 0)
	e.FieldStart("city")
	e.Str(l.City)
	e.FieldStart("category")
	e.Str(l.Category)
	e.FieldStart("size")
	e.Str(l.Size)
	e.FieldStart("condition")
	e.Str(l.Condition)
	e.FieldStart("is_active")
	e.Bool(l.IsActive)
	if len(l.Images) > 0 {
		e.FieldStart("images")
		e.ArrStart()
		for _, img := range l.Images {
			e.Str(h.imageURL(img.BlobPath))
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func (h *Handler) imageURL(blobPath string) string {
	if h.imageBaseURL == "" {
		return blobPath
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(blobPath, "/")
}
