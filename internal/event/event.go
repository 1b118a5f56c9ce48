package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	ListingCreated  Type = "listing.created"
	ListingApproved Type = "listing.approved"
	ListingRejected Type = "listing.rejected"
	ListingSold     Type = "listing.sold"

	BidPlaced Type = "bid.placed"
)

// Event is one entry in the append-only audit trail. The trail records
// every lifecycle transition and accepted bid; it is advisory, never the
// source of truth for prices (the bids table is).
type Event struct {
	ID        string          `json:"id" db:"id"`
	ListingID string          `json:"listing_id" db:"listing_id"`
	Type      Type            `json:"type" db:"type"`
	Data      json.RawMessage `json:"data" db:"data"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ListingCreatedData is the payload for ListingCreated events.
type ListingCreatedData struct {
	Title         string  `json:"title"`
	OwnerID       *string `json:"owner_id,omitempty"`
	StartingPrice string  `json:"starting_price"`
	DurationDays  int     `json:"duration_days"`
}

// ListingApprovedData is the payload for ListingApproved events.
type ListingApprovedData struct {
	ApprovedBy     string    `json:"approved_by"`
	AuctionEndTime time.Time `json:"auction_end_time"`
}

// ListingRejectedData is the payload for ListingRejected events.
type ListingRejectedData struct {
	RejectedBy string  `json:"rejected_by"`
	Reason     *string `json:"reason,omitempty"`
}

// ListingSoldData is the payload for ListingSold events.
type ListingSoldData struct {
	WinnerID   string `json:"winner_id"`
	FinalPrice string `json:"final_price"`
}

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	BidID    string `json:"bid_id"`
	BidderID string `json:"bidder_id"`
	Amount   string `json:"amount"`
}
