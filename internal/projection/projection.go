// Package projection computes read-only reporting views from the bid
// ledger and listing store. Nothing here mutates state; every number is
// recomputed from the underlying rows on each call.
package projection

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/store"
)

// Outcome classifies one bid for reporting.
type Outcome string

const (
	// OutcomeActive means the listing's auction window is still open.
	OutcomeActive Outcome = "active"
	// OutcomeWon means the auction ended with this bidder on top.
	OutcomeWon Outcome = "won"
	// OutcomeLost means the auction ended and someone else won.
	OutcomeLost Outcome = "lost"
)

// HistoryItem is one ledger entry with its derived outcome.
type HistoryItem struct {
	store.HistoryEntry
	Outcome Outcome `json:"outcome"`
}

// BidderHistory summarizes one bidder's activity.
type BidderHistory struct {
	BidderID string        `json:"bidder_id"`
	Total    int           `json:"total"`
	Active   int           `json:"active"`
	Won      int           `json:"won"`
	Lost     int           `json:"lost"`
	Ended    int           `json:"ended"`
	WinRate  float64       `json:"win_rate"`
	Counter  int           `json:"bids_placed_counter"` // best-effort running counter
	Items    []HistoryItem `json:"items"`
}

// Earnings summarizes a seller's realized and pending proceeds.
type Earnings struct {
	OwnerID        *string         `json:"owner_id,omitempty"`
	Realized       decimal.Decimal `json:"realized"`
	Pending        decimal.Decimal `json:"pending"`
	Active         int             `json:"active_listings"`
	Sold           int             `json:"sold_listings"`
	EndedUnsettled int             `json:"ended_unsettled"`
}

// Service computes projections.
type Service struct {
	listings store.ListingRepository
	bids     store.BidRepository
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewService returns a new projection Service.
func NewService(listings store.ListingRepository, bids store.BidRepository,
	logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock,
) *Service {
	return &Service{
		listings: listings,
		bids:     bids,
		logger:   logger,
		tracer:   tp.Tracer("github.com/rfadeyev/auction-house/internal/projection"),
		clock:    clk,
	}
}

// BidderHistory returns every bid a bidder placed, classified against the
// current state of each listing, with aggregate counts and win rate.
func (s *Service) BidderHistory(ctx context.Context, bidderID string) (*BidderHistory, error) {
	ctx, span := s.tracer.Start(ctx, "Service.BidderHistory",
		trace.WithAttributes(attribute.String("bidder_id", bidderID)),
	)
	defer span.End()

	entries, err := s.bids.HistoryForBidder(ctx, bidderID)
	if err != nil {
		return nil, err
	}
	counter, err := s.bids.BidsPlaced(ctx, bidderID)
	if err != nil {
		// The counter is advisory; reporting proceeds without it.
		s.logger.WarnContext(ctx, "bidder counter unavailable", slog.Any("error", err))
		counter = 0
	}

	now := s.clock.Now().UTC()
	h := &BidderHistory{
		BidderID: bidderID,
		Total:    len(entries),
		Counter:  counter,
		Items:    make([]HistoryItem, 0, len(entries)),
	}
	for _, e := range entries {
		outcome := classify(e, bidderID, now)
		switch outcome {
		case OutcomeActive:
			h.Active++
		case OutcomeWon:
			h.Won++
		case OutcomeLost:
			h.Lost++
		}
		h.Items = append(h.Items, HistoryItem{HistoryEntry: e, Outcome: outcome})
	}
	h.Ended = h.Won + h.Lost
	if h.Ended > 0 {
		h.WinRate = float64(h.Won) / float64(h.Ended)
	}
	return h, nil
}

// classify derives the outcome of one bid at now. A bid wins only when the
// window has closed, the bidder holds the top spot and this bid is the one
// that set the final price.
func classify(e store.HistoryEntry, bidderID string, now time.Time) Outcome {
	ended := e.ListingStatus == store.StatusSold || e.ListingStatus == store.StatusRejected ||
		(e.AuctionEndTime != nil && !now.Before(*e.AuctionEndTime))
	if !ended {
		return OutcomeActive
	}
	if e.HighestBidder != nil && *e.HighestBidder == bidderID && e.Amount.Equal(e.CurrentPrice) {
		return OutcomeWon
	}
	return OutcomeLost
}

// SellerEarnings aggregates a seller's listings into realized and pending
// proceeds. Pass nil for house listings.
func (s *Service) SellerEarnings(ctx context.Context, ownerID *string) (*Earnings, error) {
	ctx, span := s.tracer.Start(ctx, "Service.SellerEarnings")
	defer span.End()

	listings, err := s.listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	e := &Earnings{
		OwnerID:  ownerID,
		Realized: decimal.Zero,
		Pending:  decimal.Zero,
	}
	for i := range listings {
		l := &listings[i]
		switch {
		case l.Status == store.StatusSold:
			e.Sold++
			e.Realized = e.Realized.Add(l.CurrentPrice)
		case l.Status == store.StatusApproved && l.Ended(now):
			if l.HighestBidder != nil {
				e.EndedUnsettled++
				e.Pending = e.Pending.Add(l.CurrentPrice)
			}
		case l.Status == store.StatusApproved:
			e.Active++
		}
	}
	return e, nil
}
