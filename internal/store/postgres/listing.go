package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/store"
)

// ListingRepo implements store.ListingRepository with sqlx.
type ListingRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewListingRepo returns a new ListingRepo.
func NewListingRepo(db *sqlx.DB, clk clock.Clock) *ListingRepo {
	return &ListingRepo{db: db, clock: clk}
}

func (r *ListingRepo) Create(ctx context.Context, l *store.Listing) error {
	now := r.clock.Now().UTC()
	l.ID = uuid.NewString()
	l.Status = store.StatusPending
	l.CurrentPrice = l.StartingPrice
	l.BidCount = 0
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO listings
		     (id, title, description, owner_id, starting_price, current_price,
		      status, duration_days, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5, $6, $7, $8, $8)`,
		l.ID, l.Title, l.Description, l.OwnerID, l.StartingPrice,
		l.Status, l.DurationDays, now,
	)
	if err != nil {
		return fmt.Errorf("inserting listing: %w", err)
	}
	return nil
}

func (r *ListingRepo) GetByID(ctx context.Context, id string) (*store.Listing, error) {
	var l store.Listing
	err := r.db.GetContext(ctx, &l, `SELECT * FROM listings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting listing: %w", err)
	}
	return &l, nil
}

// lockListing reads a listing inside tx with a row lock, so state checks and
// the following update are atomic with respect to concurrent transitions.
func lockListing(ctx context.Context, tx *sqlx.Tx, id string) (*store.Listing, error) {
	var l store.Listing
	err := tx.GetContext(ctx, &l, `SELECT * FROM listings WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking listing: %w", err)
	}
	return &l, nil
}

func (r *ListingRepo) Approve(ctx context.Context, id string, endTime *time.Time) (*store.Listing, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	l, err := lockListing(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != store.StatusPending {
		return nil, fmt.Errorf("approving listing in status %q: %w", l.Status, store.ErrInvalidState)
	}

	now := r.clock.Now().UTC()
	end := now.AddDate(0, 0, l.DurationDays)
	if endTime != nil {
		end = endTime.UTC()
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE listings
		 SET status = $1, rejection_reason = NULL, auction_end_time = $2, updated_at = $3
		 WHERE id = $4`,
		store.StatusApproved, end, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("approving listing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}

	l.Status = store.StatusApproved
	l.RejectionReason = nil
	l.AuctionEndTime = &end
	l.UpdatedAt = now
	return l, nil
}

func (r *ListingRepo) Reject(ctx context.Context, id string, reason *string) (*store.Listing, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	l, err := lockListing(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	switch l.Status {
	case store.StatusSold:
		return nil, fmt.Errorf("rejecting sold listing: %w", store.ErrInvalidState)
	case store.StatusApproved:
		// Money is already committed against the listing; moderation
		// cannot unwind it.
		if l.BidCount > 0 {
			return nil, fmt.Errorf("rejecting approved listing with %d bids: %w", l.BidCount, store.ErrInvalidState)
		}
	}

	now := r.clock.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE listings SET status = $1, rejection_reason = $2, updated_at = $3 WHERE id = $4`,
		store.StatusRejected, reason, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("rejecting listing: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rejection: %w", err)
	}

	l.Status = store.StatusRejected
	l.RejectionReason = reason
	l.UpdatedAt = now
	return l, nil
}

func (r *ListingRepo) MarkSold(ctx context.Context, now time.Time) ([]store.Listing, error) {
	var settled []store.Listing
	err := r.db.SelectContext(ctx, &settled,
		`UPDATE listings
		 SET status = $1, updated_at = $2
		 WHERE status = $3 AND auction_end_time <= $2 AND highest_bidder IS NOT NULL
		 RETURNING *`,
		store.StatusSold, now.UTC(), store.StatusApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("settling ended listings: %w", err)
	}
	return settled, nil
}

func (r *ListingRepo) ListActive(ctx context.Context, now time.Time, limit, offset int) ([]store.Listing, error) {
	listings := []store.Listing{}
	err := r.db.SelectContext(ctx, &listings,
		`SELECT * FROM listings
		 WHERE status = $1 AND auction_end_time > $2
		 ORDER BY auction_end_time ASC
		 LIMIT $3 OFFSET $4`,
		store.StatusApproved, now.UTC(), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active listings: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) ListByOwner(ctx context.Context, ownerID *string) ([]store.Listing, error) {
	listings := []store.Listing{}
	var err error
	if ownerID == nil {
		// House listings carry no owner.
		err = r.db.SelectContext(ctx, &listings,
			`SELECT * FROM listings WHERE owner_id IS NULL ORDER BY created_at DESC`)
	} else {
		err = r.db.SelectContext(ctx, &listings,
			`SELECT * FROM listings WHERE owner_id = $1 ORDER BY created_at DESC`, *ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("listing by owner: %w", err)
	}
	return listings, nil
}

func (r *ListingRepo) Delete(ctx context.Context, id string, force bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	l, err := lockListing(ctx, tx, id)
	if err != nil {
		return err
	}
	if !force && l.Status != store.StatusPending {
		return fmt.Errorf("deleting listing in status %q: %w", l.Status, store.ErrInvalidState)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting listing: %w", err)
	}
	return tx.Commit()
}
