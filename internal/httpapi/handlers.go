// Package httpapi exposes the auction core over HTTP+JSON. Authentication
// happens upstream; this layer only consumes the caller identity headers
// and enforces role preconditions.
package httpapi

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/rfadeyev/auction-house/internal/auction"
	"github.com/rfadeyev/auction-house/internal/event"
	"github.com/rfadeyev/auction-house/internal/moderation"
	"github.com/rfadeyev/auction-house/internal/projection"
	"github.com/rfadeyev/auction-house/internal/store"
)

// AuctionService is the bidding surface consumed by the handlers.
type AuctionService interface {
	PlaceBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (*store.Bid, *store.Listing, error)
	GetListing(ctx context.Context, id string) (*store.Listing, auction.DisplayStatus, error)
	ListActive(ctx context.Context, limit, offset int) ([]store.Listing, error)
	Ledger(ctx context.Context, listingID string) ([]store.Bid, error)
	AuditTrail(ctx context.Context, listingID string) ([]event.Event, error)
	Status(l *store.Listing) auction.DisplayStatus
}

// ModerationService is the moderation surface consumed by the handlers.
type ModerationService interface {
	CreateListing(ctx context.Context, title, description string, ownerID *string,
		startingPrice decimal.Decimal, durationDays int) (*store.Listing, error)
	Approve(ctx context.Context, listingID, approvedBy string, requestedEnd *time.Time) (*store.Listing, error)
	Reject(ctx context.Context, listingID, rejectedBy string, reason *string) (*store.Listing, error)
	Delete(ctx context.Context, listingID string, force bool) error
}

// ProjectionService is the reporting surface consumed by the handlers.
type ProjectionService interface {
	BidderHistory(ctx context.Context, bidderID string) (*projection.BidderHistory, error)
	SellerEarnings(ctx context.Context, ownerID *string) (*projection.Earnings, error)
}

// Handler holds the HTTP handlers for the auction API.
type Handler struct {
	auctions    AuctionService
	mod         ModerationService
	projections ProjectionService
	logger      *slog.Logger
}

// NewHandler returns a new Handler.
func NewHandler(auctions AuctionService, mod ModerationService, projections ProjectionService, logger *slog.Logger) *Handler {
	return &Handler{auctions: auctions, mod: mod, projections: projections, logger: logger}
}

// Router builds the API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(Identity)

		r.Post("/listings", h.CreateListing)
		r.Get("/listings", h.ListActiveListings)
		r.Get("/listings/{listingID}", h.GetListing)
		r.Delete("/listings/{listingID}", h.DeleteListing)
		r.Post("/listings/{listingID}/approve", h.ApproveListing)
		r.Post("/listings/{listingID}/reject", h.RejectListing)
		r.Post("/listings/{listingID}/bids", h.PlaceBid)
		r.Get("/listings/{listingID}/bids", h.ListBids)
		r.Get("/listings/{listingID}/events", h.ListingEvents)
		r.Get("/bidders/{bidderID}/history", h.BidderHistory)
		r.Get("/sellers/{sellerID}/earnings", h.SellerEarnings)
	})
	return r
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Minimum *decimal.Decimal `json:"minimum,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, message string, minimum *decimal.Decimal) {
	writeJSON(w, code, map[string]errorBody{"error": {Code: errCode, Message: message, Minimum: minimum}})
}

// writeDomainError maps the error taxonomy to HTTP. Rejected bids must
// distinguish "too low" from "auction over" from "you own this item".
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "listing not found", nil)
	case errors.Is(err, store.ErrBidTooLow):
		writeError(w, http.StatusConflict, "bid_too_low", err.Error(), nil)
	case errors.Is(err, store.ErrAuctionNotActive):
		writeError(w, http.StatusConflict, "auction_not_active", err.Error(), nil)
	case errors.Is(err, store.ErrSelfBid):
		writeError(w, http.StatusForbidden, "self_bid", "you own this listing", nil)
	case errors.Is(err, store.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error(), nil)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "listing is receiving concurrent updates, retry", nil)
	case errors.Is(err, auction.ErrInvalidAmount),
		errors.Is(err, moderation.ErrEmptyTitle),
		errors.Is(err, moderation.ErrInvalidPrice),
		errors.Is(err, moderation.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "validation", err.Error(), nil)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable", nil)
	default:
		h.logger.ErrorContext(r.Context(), "internal error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
