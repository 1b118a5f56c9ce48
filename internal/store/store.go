package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors returned by repository operations. The HTTP layer maps these to
// status codes; callers compare with errors.Is.
var (
	// ErrNotFound means the entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation is not legal in the entity's
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid lifecycle state")
	// ErrAuctionNotActive means the listing is not approved or its
	// auction window has closed.
	ErrAuctionNotActive = errors.New("auction is not active")
	// ErrSelfBid means the bidder owns the listing.
	ErrSelfBid = errors.New("cannot bid on own listing")
	// ErrBidTooLow means the amount does not exceed the current price.
	ErrBidTooLow = errors.New("bid does not exceed current price")
	// ErrConflict means a concurrency race was lost and retries are exhausted.
	ErrConflict = errors.New("conflicting concurrent update")
)

// ListingStatus is the lifecycle state of a listing. The set is closed:
// pending -> approved -> sold, or pending -> rejected (terminal).
type ListingStatus string

const (
	StatusPending  ListingStatus = "pending"
	StatusApproved ListingStatus = "approved"
	StatusRejected ListingStatus = "rejected"
	StatusSold     ListingStatus = "sold"
)

// Listing is one item under auction. CurrentPrice and HighestBidder are a
// materialized projection of the bid ledger, advanced only inside the bid
// placement transaction.
type Listing struct {
	ID              string          `json:"id" db:"id"`
	Title           string          `json:"title" db:"title"`
	Description     string          `json:"description" db:"description"`
	OwnerID         *string         `json:"owner_id,omitempty" db:"owner_id"` // nil = house listing
	StartingPrice   decimal.Decimal `json:"starting_price" db:"starting_price"`
	CurrentPrice    decimal.Decimal `json:"current_price" db:"current_price"`
	HighestBidder   *string         `json:"highest_bidder,omitempty" db:"highest_bidder"`
	Status          ListingStatus   `json:"status" db:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	DurationDays    int             `json:"duration_days" db:"duration_days"` // 1-3, fixed at creation
	AuctionEndTime  *time.Time      `json:"auction_end_time,omitempty" db:"auction_end_time"`
	BidCount        int             `json:"bid_count" db:"bid_count"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Ended reports whether the listing's auction window has closed at now.
// Listings that were never approved have no window and are not ended.
func (l *Listing) Ended(now time.Time) bool {
	return l.AuctionEndTime != nil && !now.Before(*l.AuctionEndTime)
}

// Bid is one accepted offer. Rows are immutable after insertion; the bids
// table is the system of record for prices.
type Bid struct {
	ID        string          `json:"id" db:"id"`
	ListingID string          `json:"listing_id" db:"listing_id"`
	BidderID  string          `json:"bidder_id" db:"bidder_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// HistoryEntry is one bid joined to its listing, for reporting.
type HistoryEntry struct {
	BidID          string          `json:"bid_id" db:"bid_id"`
	ListingID      string          `json:"listing_id" db:"listing_id"`
	Title          string          `json:"title" db:"title"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	BidAt          time.Time       `json:"bid_at" db:"bid_at"`
	ListingStatus  ListingStatus   `json:"listing_status" db:"listing_status"`
	AuctionEndTime *time.Time      `json:"auction_end_time,omitempty" db:"auction_end_time"`
	HighestBidder  *string         `json:"highest_bidder,omitempty" db:"highest_bidder"`
	CurrentPrice   decimal.Decimal `json:"current_price" db:"current_price"`
}

// ListingRepository defines listing persistence operations. State-changing
// operations re-check preconditions inside their own transaction.
type ListingRepository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id string) (*Listing, error)
	// Approve transitions pending -> approved and sets the auction end
	// time exactly once: to endTime when non-nil, otherwise to
	// now + duration_days.
	Approve(ctx context.Context, id string, endTime *time.Time) (*Listing, error)
	// Reject marks the listing rejected with an optional reason.
	// Re-rejecting an already-rejected listing overwrites the reason.
	// Rejecting an approved listing that has accepted bids fails with
	// ErrInvalidState.
	Reject(ctx context.Context, id string, reason *string) (*Listing, error)
	// MarkSold flips approved listings whose window has closed and that
	// have a highest bidder to sold, returning the listings it settled.
	MarkSold(ctx context.Context, now time.Time) ([]Listing, error)
	// ListActive returns approved listings whose window is still open.
	ListActive(ctx context.Context, now time.Time, limit, offset int) ([]Listing, error)
	ListByOwner(ctx context.Context, ownerID *string) ([]Listing, error)
	// Delete removes a listing. Without force only pending listings may
	// be deleted; cascading bid cleanup is the caller's responsibility.
	Delete(ctx context.Context, id string, force bool) error
}

// BidRepository defines bid ledger operations.
type BidRepository interface {
	// Place atomically validates and records a bid: it locks the listing
	// row, re-checks every precondition against current state, appends
	// the bid to the ledger and advances the listing's cached price,
	// highest bidder and counters. Returns the accepted bid and the
	// updated listing.
	Place(ctx context.Context, listingID, bidderID string, amount decimal.Decimal, now time.Time) (*Bid, *Listing, error)
	// ListForListing returns the ledger for one listing in placement order.
	ListForListing(ctx context.Context, listingID string) ([]Bid, error)
	// HistoryForBidder returns every bid by a bidder joined to its listing.
	HistoryForBidder(ctx context.Context, bidderID string) ([]HistoryEntry, error)
	// BidsPlaced returns the bidder's best-effort running counter.
	BidsPlaced(ctx context.Context, bidderID string) (int, error)
}
