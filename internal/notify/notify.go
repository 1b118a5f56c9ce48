// Package notify is the boundary to the external notification system.
// Delivery is fire-and-forget: implementations never return errors and a
// failed notification must not affect the transition that triggered it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/rfadeyev/auction-house/internal/store"
)

// Notifier receives signals about auction transitions.
type Notifier interface {
	ListingApproved(ctx context.Context, l *store.Listing)
	ListingRejected(ctx context.Context, l *store.Listing)
	ListingSold(ctx context.Context, l *store.Listing)
	BidPlaced(ctx context.Context, l *store.Listing, b *store.Bid)
}

// Log is a Notifier that writes structured log lines. It stands in for the
// real delivery channel in development and tests.
type Log struct {
	Logger *slog.Logger
}

func (n Log) ListingApproved(ctx context.Context, l *store.Listing) {
	n.Logger.InfoContext(ctx, "notify: listing approved",
		slog.String("listing_id", l.ID),
		slog.Time("auction_end_time", derefTime(l.AuctionEndTime)),
	)
}

func (n Log) ListingRejected(ctx context.Context, l *store.Listing) {
	n.Logger.InfoContext(ctx, "notify: listing rejected",
		slog.String("listing_id", l.ID),
		slog.String("reason", derefString(l.RejectionReason)),
	)
}

func (n Log) ListingSold(ctx context.Context, l *store.Listing) {
	n.Logger.InfoContext(ctx, "notify: listing sold",
		slog.String("listing_id", l.ID),
		slog.String("winner", derefString(l.HighestBidder)),
		slog.String("final_price", l.CurrentPrice.String()),
	)
}

func (n Log) BidPlaced(ctx context.Context, l *store.Listing, b *store.Bid) {
	n.Logger.InfoContext(ctx, "notify: bid placed",
		slog.String("listing_id", l.ID),
		slog.String("bidder_id", b.BidderID),
		slog.String("amount", b.Amount.String()),
	)
}

// Nop is a Notifier that drops everything.
type Nop struct{}

func (Nop) ListingApproved(context.Context, *store.Listing)       {}
func (Nop) ListingRejected(context.Context, *store.Listing)       {}
func (Nop) ListingSold(context.Context, *store.Listing)           {}
func (Nop) BidPlaced(context.Context, *store.Listing, *store.Bid) {}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
