// Package moderation implements the admin-driven listing state machine:
// pending -> approved (opens the auction window exactly once) or
// pending -> rejected (terminal; re-submission creates a new listing).
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/event"
	"github.com/rfadeyev/auction-house/internal/notify"
	"github.com/rfadeyev/auction-house/internal/store"
)

// Validation errors for listing submissions.
var (
	ErrEmptyTitle      = errors.New("listing title is required")
	ErrInvalidPrice    = errors.New("starting price must be positive")
	ErrInvalidDuration = errors.New("duration must be between 1 and 3 days")
)

// Manager applies moderation transitions to listings.
type Manager struct {
	listings store.ListingRepository
	events   event.Store
	notifier notify.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewManager returns a new moderation Manager.
func NewManager(listings store.ListingRepository, events event.Store, notifier notify.Notifier,
	logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock,
) *Manager {
	return &Manager{
		listings: listings,
		events:   events,
		notifier: notifier,
		logger:   logger,
		tracer:   tp.Tracer("github.com/rfadeyev/auction-house/internal/moderation"),
		clock:    clk,
	}
}

// CreateListing submits a new listing in pending state. Ownership is fixed
// here and never changes; a nil owner marks a house listing.
func (m *Manager) CreateListing(ctx context.Context, title, description string, ownerID *string,
	startingPrice decimal.Decimal, durationDays int,
) (*store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateListing",
		trace.WithAttributes(attribute.String("title", title)),
	)
	defer span.End()

	if title == "" {
		return nil, ErrEmptyTitle
	}
	if !startingPrice.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if durationDays < 1 || durationDays > 3 {
		return nil, ErrInvalidDuration
	}

	l := &store.Listing{
		Title:         title,
		Description:   description,
		OwnerID:       ownerID,
		StartingPrice: startingPrice,
		DurationDays:  durationDays,
	}
	if err := m.listings.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("creating listing: %w", err)
	}

	data, _ := json.Marshal(event.ListingCreatedData{
		Title:         title,
		OwnerID:       ownerID,
		StartingPrice: startingPrice.String(),
		DurationDays:  durationDays,
	})
	m.appendEvent(ctx, l.ID, event.ListingCreated, data)

	m.logger.InfoContext(ctx, "listing created",
		slog.String("listing_id", l.ID),
		slog.String("title", title),
		slog.String("starting_price", startingPrice.String()),
	)
	return l, nil
}

// Approve transitions a pending listing to approved and opens its auction
// window. A requested end time is honored only when it lies in the future;
// otherwise the window is duration_days from now.
func (m *Manager) Approve(ctx context.Context, listingID, approvedBy string, requestedEnd *time.Time) (*store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Approve",
		trace.WithAttributes(
			attribute.String("listing_id", listingID),
			attribute.String("approved_by", approvedBy),
		),
	)
	defer span.End()

	end := requestedEnd
	if end != nil && !end.After(m.clock.Now()) {
		end = nil
	}

	l, err := m.listings.Approve(ctx, listingID, end)
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(event.ListingApprovedData{
		ApprovedBy:     approvedBy,
		AuctionEndTime: *l.AuctionEndTime,
	})
	m.appendEvent(ctx, l.ID, event.ListingApproved, data)
	m.notifier.ListingApproved(ctx, l)

	m.logger.InfoContext(ctx, "listing approved",
		slog.String("listing_id", l.ID),
		slog.Time("auction_end_time", *l.AuctionEndTime),
	)
	return l, nil
}

// Reject marks a listing rejected. Rejection is terminal; re-rejecting only
// overwrites the reason. An approved listing with accepted bids cannot be
// rejected.
func (m *Manager) Reject(ctx context.Context, listingID, rejectedBy string, reason *string) (*store.Listing, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Reject",
		trace.WithAttributes(
			attribute.String("listing_id", listingID),
			attribute.String("rejected_by", rejectedBy),
		),
	)
	defer span.End()

	l, err := m.listings.Reject(ctx, listingID, reason)
	if err != nil {
		return nil, err
	}

	data, _ := json.Marshal(event.ListingRejectedData{
		RejectedBy: rejectedBy,
		Reason:     reason,
	})
	m.appendEvent(ctx, l.ID, event.ListingRejected, data)
	m.notifier.ListingRejected(ctx, l)

	m.logger.InfoContext(ctx, "listing rejected",
		slog.String("listing_id", l.ID),
	)
	return l, nil
}

// Delete removes a listing. Non-privileged callers may only delete pending
// listings; force bypasses the state check for admins.
func (m *Manager) Delete(ctx context.Context, listingID string, force bool) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Delete",
		trace.WithAttributes(
			attribute.String("listing_id", listingID),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	if err := m.listings.Delete(ctx, listingID, force); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "listing deleted", slog.String("listing_id", listingID))
	return nil
}

// appendEvent records an audit event best-effort. The audit trail never
// blocks or rolls back the transition that produced it.
func (m *Manager) appendEvent(ctx context.Context, listingID string, t event.Type, data json.RawMessage) {
	if err := m.events.Append(ctx, event.Event{ListingID: listingID, Type: t, Data: data}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("listing_id", listingID),
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
}
