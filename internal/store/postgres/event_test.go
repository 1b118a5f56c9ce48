package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rfadeyev/auction-house/internal/clock"
	"github.com/rfadeyev/auction-house/internal/event"
	"github.com/rfadeyev/auction-house/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	listings := postgres.NewListingRepo(db, clock.Real{})
	events := postgres.NewEventStore(db)
	ctx := context.Background()

	l := newListing("audited item", nil, "100", 1)
	if err := listings.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}

	created, _ := json.Marshal(event.ListingCreatedData{Title: l.Title, StartingPrice: "100", DurationDays: 1})
	approved, _ := json.Marshal(event.ListingApprovedData{ApprovedBy: "mod-1"})
	if err := events.Append(ctx,
		event.Event{ListingID: l.ID, Type: event.ListingCreated, Data: created},
		event.Event{ListingID: l.ID, Type: event.ListingApproved, Data: approved},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := events.Load(ctx, l.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(got))
	}
	if got[0].Type != event.ListingCreated || got[1].Type != event.ListingApproved {
		t.Errorf("event order = %q, %q", got[0].Type, got[1].Type)
	}

	var data event.ListingApprovedData
	if err := json.Unmarshal(got[1].Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.ApprovedBy != "mod-1" {
		t.Errorf("ApprovedBy = %q, want mod-1", data.ApprovedBy)
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	listings := postgres.NewListingRepo(db, clock.Real{})
	events := postgres.NewEventStore(db)
	ctx := context.Background()

	l := newListing("item", nil, "10", 1)
	if err := listings.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	l2 := newListing("other", nil, "10", 1)
	if err := listings.Create(ctx, l2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := events.Append(ctx,
		event.Event{ListingID: l.ID, Type: event.ListingCreated, Data: json.RawMessage(`{}`)},
		event.Event{ListingID: l2.ID, Type: event.ListingCreated, Data: json.RawMessage(`{}`)},
		event.Event{ListingID: l.ID, Type: event.ListingRejected, Data: json.RawMessage(`{}`)},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := events.LoadByType(ctx, event.ListingCreated)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadByType returned %d, want 2", len(got))
	}
	for _, e := range got {
		if e.Type != event.ListingCreated {
			t.Errorf("Type = %q, want %q", e.Type, event.ListingCreated)
		}
	}
}
