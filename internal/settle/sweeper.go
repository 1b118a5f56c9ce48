// Package settle flips ended auctions with a winner from approved to sold.
// The sweep is a convenience for reporting: "ended" is always derived from
// the clock on read, so a delayed or skipped sweep never reopens bidding.
package settle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/event"
	"github.com/rfadeyev/auction-house/internal/notify"
	"github.com/rfadeyev/auction-house/internal/store"
)

// Sweeper periodically settles ended listings. Exactly one replica should
// run it; under Kubernetes that is enforced with leader election.
type Sweeper struct {
	listings store.ListingRepository
	events   event.Store
	notifier notify.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
	interval time.Duration
}

// New returns a new Sweeper.
func New(listings store.ListingRepository, events event.Store, notifier notify.Notifier,
	logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock, interval time.Duration,
) *Sweeper {
	return &Sweeper{
		listings: listings,
		events:   events,
		notifier: notifier,
		logger:   logger,
		tracer:   tp.Tracer("github.com/rfadeyev/auction-house/internal/settle"),
		clock:    clk,
		interval: interval,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "settlement sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement sweep failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce settles every approved listing whose window has closed with a
// highest bidder, returning how many listings were marked sold.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Sweeper.SweepOnce")
	defer span.End()

	settled, err := s.listings.MarkSold(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("settled", len(settled)))

	for i := range settled {
		l := &settled[i]
		data, _ := json.Marshal(event.ListingSoldData{
			WinnerID:   derefString(l.HighestBidder),
			FinalPrice: l.CurrentPrice.String(),
		})
		if appendErr := s.events.Append(ctx, event.Event{
			ListingID: l.ID,
			Type:      event.ListingSold,
			Data:      data,
		}); appendErr != nil {
			s.logger.ErrorContext(ctx, "failed to append listing sold event",
				slog.String("listing_id", l.ID),
				slog.Any("error", appendErr),
			)
		}
		s.notifier.ListingSold(ctx, l)

		s.logger.InfoContext(ctx, "listing settled",
			slog.String("listing_id", l.ID),
			slog.String("winner", derefString(l.HighestBidder)),
			slog.String("final_price", l.CurrentPrice.String()),
		)
	}
	return len(settled), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
