package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rfadeyev/auction-house/internal/auction"
	"github.com/rfadeyev/auction-house/internal/store"
)

type createListingRequest struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	DurationDays  int             `json:"duration_days"`
	House         bool            `json:"house,omitempty"`
}

type approveRequest struct {
	EndTime *time.Time `json:"end_time,omitempty"`
}

type rejectRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// listingResponse is a Listing with its derived display status attached.
type listingResponse struct {
	store.Listing
	DisplayStatus auction.DisplayStatus `json:"display_status"`
}

func (h *Handler) listingResponse(l *store.Listing) listingResponse {
	return listingResponse{Listing: *l, DisplayStatus: h.auctions.Status(l)}
}

// CreateListing submits a new listing for review. Moderators may flag it as a
// house listing, which has no owner and accepts bids from everyone.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}

	owner := &caller.ID
	if req.House {
		if !caller.CanModerate() {
			writeError(w, http.StatusForbidden, "forbidden", "only moderators may create house listings", nil)
			return
		}
		owner = nil
	}

	l, err := h.mod.CreateListing(r.Context(), req.Title, req.Description, owner, req.StartingPrice, req.DurationDays)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.listingResponse(l))
}

// ListActiveListings returns approved listings whose auctions are still open.
func (h *Handler) ListActiveListings(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	listings, err := h.auctions.ListActive(r.Context(), limit, offset)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]listingResponse, 0, len(listings))
	for i := range listings {
		out = append(out, h.listingResponse(&listings[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "listingID")
	l, status, err := h.auctions.GetListing(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{Listing: *l, DisplayStatus: status})
}

// ApproveListing opens the auction. Only moderators, and never on their own
// listing.
func (h *Handler) ApproveListing(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if !caller.CanModerate() {
		writeError(w, http.StatusForbidden, "forbidden", "moderator role required", nil)
		return
	}
	id := chi.URLParam(r, "listingID")

	var req approveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
			return
		}
	}

	if forbidsSelfModeration(h, w, r, id, caller) {
		return
	}

	l, err := h.mod.Approve(r.Context(), id, caller.ID, req.EndTime)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listingResponse(l))
}

// RejectListing declines a pending listing, or withdraws an approved one that
// has no bids yet.
func (h *Handler) RejectListing(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if !caller.CanModerate() {
		writeError(w, http.StatusForbidden, "forbidden", "moderator role required", nil)
		return
	}
	id := chi.URLParam(r, "listingID")

	var req rejectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
			return
		}
	}

	if forbidsSelfModeration(h, w, r, id, caller) {
		return
	}

	l, err := h.mod.Reject(r.Context(), id, caller.ID, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listingResponse(l))
}

// forbidsSelfModeration writes a 403 and returns true when the caller owns the
// listing they are trying to moderate. Admins are exempt.
func forbidsSelfModeration(h *Handler, w http.ResponseWriter, r *http.Request, id string, caller Caller) bool {
	if caller.Role == RoleAdmin {
		return false
	}
	l, _, err := h.auctions.GetListing(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return true
	}
	if l.OwnerID != nil && *l.OwnerID == caller.ID {
		writeError(w, http.StatusForbidden, "forbidden", "cannot moderate your own listing", nil)
		return true
	}
	return false
}

// DeleteListing removes a listing. Sellers may delete their own pending
// listings; admins may force-delete anything.
func (h *Handler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	id := chi.URLParam(r, "listingID")
	force := r.URL.Query().Get("force") == "true"

	if force && caller.Role != RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "admin role required for force delete", nil)
		return
	}
	if !caller.CanModerate() {
		l, _, err := h.auctions.GetListing(r.Context(), id)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		if l.OwnerID == nil || *l.OwnerID != caller.ID {
			writeError(w, http.StatusForbidden, "forbidden", "not your listing", nil)
			return
		}
	}

	if err := h.mod.Delete(r.Context(), id, force); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListingEvents returns the moderation and bidding audit trail for a listing.
func (h *Handler) ListingEvents(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if !caller.CanModerate() {
		writeError(w, http.StatusForbidden, "forbidden", "moderator role required", nil)
		return
	}
	id := chi.URLParam(r, "listingID")
	events, err := h.auctions.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
