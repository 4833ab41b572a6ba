// Package handler exposes the marketplace over HTTP. Handlers are thin: they
// decode input, delegate to the domain, and map results or domain errors to
// responses. All business rules live in internal/domain.
package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xenking/loppis/internal/domain/basket"
	"github.com/xenking/loppis/internal/domain/delivery"
	"github.com/xenking/loppis/internal/domain/favorite"
	"github.com/xenking/loppis/internal/domain/listing"
	"github.com/xenking/loppis/internal/domain/order"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// BuyerID is the pre-resolved buyer identity all requests act as.
	// Authentication is out of scope; the identity source is injected here at
	// construction instead of being read from the environment per request.
	BuyerID uuid.UUID

	// ImageBaseURL is prepended to stored image blob paths in responses.
	// When empty, paths are returned as stored.
	ImageBaseURL string
}

// Handler routes marketplace API requests to the domain services.
type Handler struct {
	buyerID      uuid.UUID
	imageBaseURL string

	listings   listing.Repository
	baskets    basket.Repository
	favorites  favorite.Repository
	orders     *order.Service
	deliveries delivery.Repository
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	listings listing.Repository,
	baskets basket.Repository,
	favorites favorite.Repository,
	orders *order.Service,
	deliveries delivery.Repository,
) *Handler {
	return &Handler{
		buyerID:      cfg.BuyerID,
		imageBaseURL: cfg.ImageBaseURL,
		listings:     listings,
		baskets:      baskets,
		favorites:    favorites,
		orders:       orders,
		deliveries:   deliveries,
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})

	mux.HandleFunc("GET /api/listings", h.ListListings)
	mux.HandleFunc("POST /api/listings", h.CreateListing)
	mux.HandleFunc("GET /api/listings/{id}", h.GetListing)
	mux.HandleFunc("POST /api/listings/{id}/images", h.AddListingImages)

	mux.HandleFunc("GET /api/basket", h.GetBasket)
	mux.HandleFunc("POST /api/basket/{listingID}", h.AddToBasket)
	mux.HandleFunc("DELETE /api/basket/{listingID}", h.RemoveFromBasket)

	mux.HandleFunc("GET /api/favorites", h.ListFavorites)
	mux.HandleFunc("POST /api/favorites/{listingID}", h.AddFavorite)
	mux.HandleFunc("DELETE /api/favorites/{listingID}", h.RemoveFavorite)

	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("POST /api/orders/confirm", h.ConfirmOrder)

	mux.HandleFunc("GET /api/deliveries", h.ListDeliveries)
	mux.HandleFunc("POST /api/deliveries/{id}/status", h.UpdateDeliveryStatus)

	return mux
}

// pathUUID parses the named path segment as a UUID, writing a 400 response
// and returning false when it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
