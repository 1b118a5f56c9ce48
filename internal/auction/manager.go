package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/event"
	"github.com/rfadeyev/auction-house/internal/notify"
	"github.com/rfadeyev/auction-house/internal/store"
)

// ErrInvalidAmount means the bid amount is malformed (zero or negative).
var ErrInvalidAmount = errors.New("bid amount must be positive")

// Manager coordinates bid placement and listing reads.
type Manager struct {
	listings store.ListingRepository
	bids     store.BidRepository
	events   event.Store
	notifier notify.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	thresholds Thresholds
	// attempts bounds the retries a bid gets when its transaction is
	// aborted by the database (deadlock or serialization failure). A
	// losing-but-committed race is not retried here: the repository
	// reports it as ErrBidTooLow so the client can rebid higher.
	attempts int
}

// NewManager creates a new auction Manager.
func NewManager(listings store.ListingRepository, bids store.BidRepository, events event.Store,
	notifier notify.Notifier, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock,
	thresholds Thresholds, attempts int,
) *Manager {
	if attempts < 1 {
		attempts = 1
	}
	return &Manager{
		listings:   listings,
		bids:       bids,
		events:     events,
		notifier:   notifier,
		logger:     logger,
		tracer:     tp.Tracer("github.com/rfadeyev/auction-house/internal/auction"),
		clock:      clk,
		thresholds: thresholds,
		attempts:   attempts,
	}
}

// PlaceBid validates and records a bid against a listing, returning the
// accepted bid and the listing with its advanced price.
func (m *Manager) PlaceBid(ctx context.Context, listingID, bidderID string, amount decimal.Decimal) (*store.Bid, *store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("listing_id", listingID),
			attribute.String("bidder_id", bidderID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	if !amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}

	var (
		bid     *store.Bid
		listing *store.Listing
		err     error
	)
	for attempt := 1; attempt <= m.attempts; attempt++ {
		bid, listing, err = m.bids.Place(ctx, listingID, bidderID, amount, m.clock.Now().UTC())
		if err == nil || !retryable(err) {
			break
		}
		m.logger.WarnContext(ctx, "bid transaction aborted, retrying",
			slog.String("listing_id", listingID),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	if err != nil {
		if retryable(err) {
			return nil, nil, fmt.Errorf("bid aborted after %d attempts: %w", m.attempts, store.ErrConflict)
		}
		return nil, nil, err
	}

	data, _ := json.Marshal(event.BidPlacedData{
		BidID:    bid.ID,
		BidderID: bidderID,
		Amount:   amount.String(),
	})
	if appendErr := m.events.Append(ctx, event.Event{
		ListingID: listingID,
		Type:      event.BidPlaced,
		Data:      data,
	}); appendErr != nil {
		m.logger.ErrorContext(ctx, "failed to append bid placed event", slog.Any("error", appendErr))
	}

	m.notifier.BidPlaced(ctx, listing, bid)

	m.logger.InfoContext(ctx, "bid placed",
		slog.String("listing_id", listingID),
		slog.String("bidder_id", bidderID),
		slog.String("amount", amount.String()),
		slog.Int("bid_count", listing.BidCount),
	)
	return bid, listing, nil
}

// retryable reports whether err is a transient transaction abort worth a
// fresh attempt. Lost races that committed (ErrBidTooLow) are final.
func retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected.
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

// GetListing returns a listing together with its derived display status.
func (m *Manager) GetListing(ctx context.Context, id string) (*store.Listing, DisplayStatus, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.GetListing",
		trace.WithAttributes(attribute.String("listing_id", id)),
	)
	defer span.End()

	l, err := m.listings.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return l, DeriveStatus(l.Status, l.AuctionEndTime, m.clock.Now().UTC(), m.thresholds), nil
}

// ListActive returns approved listings whose window is still open.
func (m *Manager) ListActive(ctx context.Context, limit, offset int) ([]store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListActive")
	defer span.End()

	return m.listings.ListActive(ctx, m.clock.Now().UTC(), limit, offset)
}

// Ledger returns the full bid ledger for a listing in placement order.
func (m *Manager) Ledger(ctx context.Context, listingID string) ([]store.Bid, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Ledger",
		trace.WithAttributes(attribute.String("listing_id", listingID)),
	)
	defer span.End()

	if _, err := m.listings.GetByID(ctx, listingID); err != nil {
		return nil, err
	}
	return m.bids.ListForListing(ctx, listingID)
}

// AuditTrail returns the audit events recorded for a listing.
func (m *Manager) AuditTrail(ctx context.Context, listingID string) ([]event.Event, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AuditTrail",
		trace.WithAttributes(attribute.String("listing_id", listingID)),
	)
	defer span.End()

	if _, err := m.listings.GetByID(ctx, listingID); err != nil {
		return nil, err
	}
	return m.events.Load(ctx, listingID)
}

// Status derives the display status for an already-loaded listing.
func (m *Manager) Status(l *store.Listing) DisplayStatus {
	return DeriveStatus(l.Status, l.AuctionEndTime, m.clock.Now().UTC(), m.thresholds)
}
