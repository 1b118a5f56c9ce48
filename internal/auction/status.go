package auction

import (
	"time"

	"github.com/rfadeyev/auction-house/internal/store"
)

// DisplayStatus is what a client renders for a listing's auction state.
// It is derived, never stored: "ended" is purely a function of time, so no
// background job is needed to close an auction.
type DisplayStatus string

const (
	// DisplayUpcoming means the listing is not yet live (pending moderation).
	DisplayUpcoming DisplayStatus = "upcoming"
	// DisplayActive means the auction is open with ample time remaining.
	DisplayActive DisplayStatus = "active"
	// DisplayHot means the auction closes within the broader threshold.
	DisplayHot DisplayStatus = "hot"
	// DisplayEnding means the auction closes within the narrow threshold.
	DisplayEnding DisplayStatus = "ending"
	// DisplayEnded means the window has closed, or the listing can never
	// go live (rejected) or has been settled (sold).
	DisplayEnded DisplayStatus = "ended"
)

// Thresholds configures the remaining-time cutoffs for the display tiers.
type Thresholds struct {
	EndingSoon time.Duration // below this: "ending"
	Hot        time.Duration // below this: "hot"
}

// DeriveStatus computes the display state for a listing at now.
func DeriveStatus(status store.ListingStatus, endTime *time.Time, now time.Time, th Thresholds) DisplayStatus {
	switch status {
	case store.StatusPending:
		return DisplayUpcoming
	case store.StatusRejected, store.StatusSold:
		return DisplayEnded
	}

	if endTime == nil || !now.Before(*endTime) {
		return DisplayEnded
	}

	switch remaining := endTime.Sub(now); {
	case remaining < th.EndingSoon:
		return DisplayEnding
	case remaining < th.Hot:
		return DisplayHot
	default:
		return DisplayActive
	}
}

// Winner returns the bid that wins an ended auction: the single
// highest-amount row in the ledger. Ties on amount are impossible by
// construction (every accepted bid strictly exceeds the price before it),
// but are broken by earliest placement anyway. Returns nil when the ledger
// is empty.
func Winner(bids []store.Bid) *store.Bid {
	var best *store.Bid
	for i := range bids {
		b := &bids[i]
		switch {
		case best == nil:
			best = b
		case b.Amount.GreaterThan(best.Amount):
			best = b
		case b.Amount.Equal(best.Amount) && b.CreatedAt.Before(best.CreatedAt):
			best = b
		}
	}
	return best
}
