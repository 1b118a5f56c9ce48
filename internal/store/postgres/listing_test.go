package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/store"
	"github.com/rfadeyev/auction-house/internal/store/postgres"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newListing(title string, owner *string, price string, days int) *store.Listing {
	return &store.Listing{
		Title:         title,
		Description:   "test item",
		OwnerID:       owner,
		StartingPrice: dec(price),
		DurationDays:  days,
	}
}

func TestListingRepo_CreateAndGetByID(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db, clock.Real{})
	ctx := context.Background()

	owner := "seller-1"
	l := newListing("vintage synth", &owner, "100.00", 2)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if l.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}
	if l.Status != store.StatusPending {
		t.Errorf("Status = %q, want %q", l.Status, store.StatusPending)
	}

	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "vintage synth" {
		t.Errorf("Title = %q, want %q", got.Title, "vintage synth")
	}
	if !got.CurrentPrice.Equal(dec("100.00")) {
		t.Errorf("CurrentPrice = %s, want 100.00", got.CurrentPrice)
	}
	if got.OwnerID == nil || *got.OwnerID != owner {
		t.Errorf("OwnerID = %v, want %q", got.OwnerID, owner)
	}
}

func TestListingRepo_GetByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db, clock.Real{})

	_, err := repo.GetByID(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestListingRepo_Approve(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	repo := postgres.NewListingRepo(db, clk)
	ctx := context.Background()

	l := newListing("lamp", nil, "50", 2)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	approved, err := repo.Approve(ctx, l.ID, nil)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != store.StatusApproved {
		t.Errorf("Status = %q, want approved", approved.Status)
	}
	wantEnd := start.AddDate(0, 0, 2)
	if approved.AuctionEndTime == nil || !approved.AuctionEndTime.Equal(wantEnd) {
		t.Errorf("AuctionEndTime = %v, want %v", approved.AuctionEndTime, wantEnd)
	}

	// Approving twice is an invalid transition.
	if _, err := repo.Approve(ctx, l.ID, nil); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("second Approve error = %v, want ErrInvalidState", err)
	}
}

func TestListingRepo_ApproveWithRequestedEnd(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := postgres.NewListingRepo(db, clk)
	ctx := context.Background()

	l := newListing("lamp", nil, "50", 1)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	end := clk.Now().Add(36 * time.Hour)
	approved, err := repo.Approve(ctx, l.ID, &end)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.AuctionEndTime == nil || !approved.AuctionEndTime.Equal(end) {
		t.Errorf("AuctionEndTime = %v, want %v", approved.AuctionEndTime, end)
	}
}

func TestListingRepo_Reject(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db, clock.Real{})
	ctx := context.Background()

	l := newListing("counterfeit watch", nil, "500", 1)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	reason := "prohibited item"
	rejected, err := repo.Reject(ctx, l.ID, &reason)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != store.StatusRejected {
		t.Errorf("Status = %q, want rejected", rejected.Status)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != reason {
		t.Errorf("RejectionReason = %v, want %q", rejected.RejectionReason, reason)
	}

	// Re-rejecting only overwrites the reason.
	newReason := "fraudulent seller"
	rejected, err = repo.Reject(ctx, l.ID, &newReason)
	if err != nil {
		t.Fatalf("second Reject: %v", err)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != newReason {
		t.Errorf("RejectionReason = %v, want %q", rejected.RejectionReason, newReason)
	}
}

func TestListingRepo_RejectApprovedWithBids(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	listings := postgres.NewListingRepo(db, clk)
	bids := postgres.NewBidRepo(db, clk)
	ctx := context.Background()

	l := newListing("guitar", nil, "200", 2)
	if err := listings.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := listings.Approve(ctx, l.ID, nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// Approved with no bids may still be withdrawn.
	l2 := newListing("amp", nil, "100", 2)
	if err := listings.Create(ctx, l2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := listings.Approve(ctx, l2.ID, nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := listings.Reject(ctx, l2.ID, nil); err != nil {
		t.Fatalf("Reject approved without bids: %v", err)
	}

	// Once money is committed the listing cannot be rejected.
	if _, _, err := bids.Place(ctx, l.ID, "buyer-a", dec("250"), clk.Now()); err != nil {
		t.Fatalf("Place: %v", err)
	}
	if _, err := listings.Reject(ctx, l.ID, nil); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Reject with bids error = %v, want ErrInvalidState", err)
	}
}

func TestListingRepo_MarkSold(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	listings := postgres.NewListingRepo(db, clk)
	bids := postgres.NewBidRepo(db, clk)
	ctx := context.Background()

	withBid := newListing("sold item", nil, "100", 1)
	noBids := newListing("unsold item", nil, "100", 1)
	for _, l := range []*store.Listing{withBid, noBids} {
		if err := listings.Create(ctx, l); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := listings.Approve(ctx, l.ID, nil); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}
	if _, _, err := bids.Place(ctx, withBid.ID, "buyer-a", dec("120"), clk.Now()); err != nil {
		t.Fatalf("Place: %v", err)
	}

	// Before the window closes nothing settles.
	settled, err := listings.MarkSold(ctx, clk.Now())
	if err != nil {
		t.Fatalf("MarkSold: %v", err)
	}
	if len(settled) != 0 {
		t.Fatalf("settled %d listings before end, want 0", len(settled))
	}

	clk.Advance(25 * time.Hour)
	settled, err = listings.MarkSold(ctx, clk.Now())
	if err != nil {
		t.Fatalf("MarkSold: %v", err)
	}
	if len(settled) != 1 {
		t.Fatalf("settled %d listings, want 1", len(settled))
	}
	if settled[0].ID != withBid.ID {
		t.Errorf("settled listing = %s, want %s", settled[0].ID, withBid.ID)
	}
	if settled[0].Status != store.StatusSold {
		t.Errorf("Status = %q, want sold", settled[0].Status)
	}

	// Ended with no bids stays approved; "ended" is derived on read.
	got, err := listings.GetByID(ctx, noBids.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != store.StatusApproved {
		t.Errorf("no-bid listing status = %q, want approved", got.Status)
	}
}

func TestListingRepo_ListActive(t *testing.T) {
	db := newTestDB(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(start)
	repo := postgres.NewListingRepo(db, clk)
	ctx := context.Background()

	pending := newListing("pending", nil, "10", 1)
	active := newListing("active", nil, "10", 2)
	ended := newListing("ended", nil, "10", 1)
	for _, l := range []*store.Listing{pending, active, ended} {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	for _, l := range []*store.Listing{active, ended} {
		if _, err := repo.Approve(ctx, l.ID, nil); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}

	clk.Advance(30 * time.Hour) // past ended's one-day window

	got, err := repo.ListActive(ctx, clk.Now(), 10, 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListActive returned %d, want 1", len(got))
	}
	if got[0].ID != active.ID {
		t.Errorf("active listing = %s, want %s", got[0].ID, active.ID)
	}
}

func TestListingRepo_ListByOwner(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db, clock.Real{})
	ctx := context.Background()

	owner := "seller-1"
	mine := newListing("mine", &owner, "10", 1)
	house := newListing("house", nil, "10", 1)
	for _, l := range []*store.Listing{mine, house} {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.ListByOwner(ctx, &owner)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("ListByOwner(owner) = %+v, want just %s", got, mine.ID)
	}

	got, err = repo.ListByOwner(ctx, nil)
	if err != nil {
		t.Fatalf("ListByOwner(nil): %v", err)
	}
	if len(got) != 1 || got[0].ID != house.ID {
		t.Fatalf("ListByOwner(nil) = %+v, want just %s", got, house.ID)
	}
}

func TestListingRepo_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewListingRepo(db, clock.Real{})
	ctx := context.Background()

	l := newListing("deleteme", nil, "10", 1)
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Delete(ctx, l.ID, false); err != nil {
		t.Fatalf("Delete pending: %v", err)
	}
	if _, err := repo.GetByID(ctx, l.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID after delete error = %v, want ErrNotFound", err)
	}

	l2 := newListing("approved", nil, "10", 1)
	if err := repo.Create(ctx, l2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Approve(ctx, l2.ID, nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := repo.Delete(ctx, l2.ID, false); !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("Delete approved error = %v, want ErrInvalidState", err)
	}
	if err := repo.Delete(ctx, l2.ID, true); err != nil {
		t.Errorf("force Delete: %v", err)
	}
}
