package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/store"
)

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sqlx.DB, clk clock.Clock) *BidRepo {
	return &BidRepo{db: db, clock: clk}
}

// Place runs the whole check-then-act sequence in one transaction. The row
// lock on the listing serializes concurrent bids: a caller that loses the
// race re-reads the advanced price under the lock and fails with
// ErrBidTooLow rather than double-counting a price level.
func (r *BidRepo) Place(ctx context.Context, listingID, bidderID string, amount decimal.Decimal, now time.Time) (*store.Bid, *store.Listing, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	l, err := lockListing(ctx, tx, listingID)
	if err != nil {
		return nil, nil, err
	}

	if l.Status != store.StatusApproved {
		return nil, nil, fmt.Errorf("listing status %q: %w", l.Status, store.ErrAuctionNotActive)
	}
	if l.AuctionEndTime == nil || !now.Before(*l.AuctionEndTime) {
		return nil, nil, fmt.Errorf("auction window closed: %w", store.ErrAuctionNotActive)
	}
	if l.OwnerID != nil && *l.OwnerID == bidderID {
		return nil, nil, store.ErrSelfBid
	}
	if !amount.GreaterThan(l.CurrentPrice) {
		return nil, nil, fmt.Errorf("amount %s does not exceed current price %s: %w",
			amount, l.CurrentPrice, store.ErrBidTooLow)
	}

	bid := &store.Bid{
		ID:        uuid.NewString(),
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: now.UTC(),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO bids (id, listing_id, bidder_id, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		bid.ID, bid.ListingID, bid.BidderID, bid.Amount, bid.CreatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("inserting bid: %w", err)
	}

	// Advance the materialized projection on the listing in the same
	// transaction, so the cache can never diverge from the ledger.
	_, err = tx.ExecContext(ctx,
		`UPDATE listings
		 SET current_price = $1, highest_bidder = $2, bid_count = bid_count + 1, updated_at = $3
		 WHERE id = $4`,
		amount, bidderID, now.UTC(), listingID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("advancing listing price: %w", err)
	}

	// Running per-bidder counter. Non-authoritative; projections always
	// recompute from the ledger.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO bidder_stats (bidder_id, bids_placed, updated_at)
		 VALUES ($1, 1, $2)
		 ON CONFLICT (bidder_id)
		 DO UPDATE SET bids_placed = bidder_stats.bids_placed + 1, updated_at = EXCLUDED.updated_at`,
		bidderID, now.UTC(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("updating bidder stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing bid: %w", err)
	}

	l.CurrentPrice = amount
	l.HighestBidder = &bidderID
	l.BidCount++
	l.UpdatedAt = now.UTC()
	return bid, l, nil
}

func (r *BidRepo) ListForListing(ctx context.Context, listingID string) ([]store.Bid, error) {
	bids := []store.Bid{}
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE listing_id = $1 ORDER BY created_at ASC, amount ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

func (r *BidRepo) HistoryForBidder(ctx context.Context, bidderID string) ([]store.HistoryEntry, error) {
	entries := []store.HistoryEntry{}
	err := r.db.SelectContext(ctx, &entries,
		`SELECT b.id AS bid_id,
		        b.listing_id,
		        COALESCE(l.title, '') AS title,
		        b.amount,
		        b.created_at AS bid_at,
		        l.status AS listing_status,
		        l.auction_end_time,
		        l.highest_bidder,
		        COALESCE(l.current_price, l.starting_price) AS current_price
		 FROM bids b
		 JOIN listings l ON l.id = b.listing_id
		 WHERE b.bidder_id = $1
		 ORDER BY b.created_at DESC`,
		bidderID)
	if err != nil {
		return nil, fmt.Errorf("loading bidder history: %w", err)
	}
	return entries, nil
}

func (r *BidRepo) BidsPlaced(ctx context.Context, bidderID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COALESCE(bids_placed, 0) FROM bidder_stats WHERE bidder_id = $1`, bidderID)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent row means no bids yet.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading bidder stats: %w", err)
	}
	return n, nil
}
