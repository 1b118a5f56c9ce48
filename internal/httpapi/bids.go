package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rfadeyev/auction-house/internal/store"
)

type placeBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type placeBidResponse struct {
	Bid     *store.Bid      `json:"bid"`
	Listing listingResponse `json:"listing"`
}

// PlaceBid places a bid on behalf of the caller. A rejected bid reports the
// current price so the client can prompt for a higher amount.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	id := chi.URLParam(r, "listingID")

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}

	bid, listing, err := h.auctions.PlaceBid(r.Context(), id, caller.ID, req.Amount)
	if err != nil {
		if errors.Is(err, store.ErrBidTooLow) {
			minimum := h.currentMinimum(r, id)
			writeError(w, http.StatusConflict, "bid_too_low", err.Error(), minimum)
			return
		}
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeBidResponse{
		Bid:     bid,
		Listing: h.listingResponse(listing),
	})
}

// currentMinimum looks up the price a new bid must exceed. Best effort; a nil
// return just omits the hint from the error body.
func (h *Handler) currentMinimum(r *http.Request, listingID string) *decimal.Decimal {
	l, _, err := h.auctions.GetListing(r.Context(), listingID)
	if err != nil {
		return nil
	}
	return &l.CurrentPrice
}

// ListBids returns the full bid ledger for a listing, oldest first.
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "listingID")
	bids, err := h.auctions.Ledger(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

// BidderHistory returns the caller's bid history with outcome annotations.
// Moderators may inspect any bidder.
func (h *Handler) BidderHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	bidderID := chi.URLParam(r, "bidderID")
	if bidderID != caller.ID && !caller.CanModerate() {
		writeError(w, http.StatusForbidden, "forbidden", "cannot view another bidder's history", nil)
		return
	}

	hist, err := h.projections.BidderHistory(r.Context(), bidderID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// SellerEarnings returns realized and pending proceeds for a seller. The
// reserved id "house" reports on ownerless house listings and is moderator
// only.
func (h *Handler) SellerEarnings(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	sellerID := chi.URLParam(r, "sellerID")

	var owner *string
	if sellerID == "house" {
		if !caller.CanModerate() {
			writeError(w, http.StatusForbidden, "forbidden", "moderator role required", nil)
			return
		}
	} else {
		if sellerID != caller.ID && !caller.CanModerate() {
			writeError(w, http.StatusForbidden, "forbidden", "cannot view another seller's earnings", nil)
			return
		}
		owner = &sellerID
	}

	earnings, err := h.projections.SellerEarnings(r.Context(), owner)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, earnings)
}
