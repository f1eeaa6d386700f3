package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/assignment"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/counter"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/location"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/modules/sweeper"
	"cabdispatch/internal/types"
)

var (
	_ booking.Store              = (*BookingStore)(nil)
	_ sweeper.Store              = (*BookingStore)(nil)
	_ location.BookingPositions  = (*BookingStore)(nil)
	_ operator.PendingQuery      = (*BookingStore)(nil)
	_ driver.Store               = (*DriverStore)(nil)
	_ assignment.DriverDirectory = (*DriverStore)(nil)
	_ offer.Store                = (*OfferStore)(nil)
	_ assignment.Assigner        = (*OfferStore)(nil)
	_ operator.Store             = (*OperatorStore)(nil)
	_ counter.Store              = (*CounterStore)(nil)
)

func TestReturnedBookingsAreCopies(t *testing.T) {
	db := New()
	ctx := context.Background()
	db.Bookings().Put(&booking.Booking{ID: "b1", Status: booking.StatusPendingAssignment, DeclinedDriverIDs: []types.ID{"DR1"}})

	b, _ := db.Bookings().Get(ctx, "b1")
	b.Status = booking.StatusCompleted
	b.DeclinedDriverIDs[0] = "DR9"

	again, _ := db.Bookings().Get(ctx, "b1")
	if again.Status != booking.StatusPendingAssignment || again.DeclinedDriverIDs[0] != "DR1" {
		t.Fatalf("stored booking mutated through a returned copy: %+v", again)
	}
}

func TestAssignBuildErrorWritesNothing(t *testing.T) {
	db := New()
	ctx := context.Background()
	db.Bookings().Put(&booking.Booking{ID: "b1", Status: booking.StatusPendingAssignment})

	boom := errors.New("no")
	_, err := db.Offers().Assign(ctx, "b1", func(b *booking.Booking) (*offer.Offer, error) {
		b.Status = booking.StatusDriverAssigned
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	b, _ := db.Bookings().Get(ctx, "b1")
	if b.Status != booking.StatusPendingAssignment {
		t.Fatalf("status = %s", b.Status)
	}
	if _, err := db.Offers().Assign(ctx, "missing", nil); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestListActiveByDriver(t *testing.T) {
	db := New()
	for id, st := range map[types.ID]booking.Status{
		"a": booking.StatusDriverAssigned,
		"b": booking.StatusInProgress,
		"c": booking.StatusCompleted,
		"d": booking.StatusCancelledByOperator,
	} {
		db.Bookings().Put(&booking.Booking{ID: id, DriverID: "DR1", Status: st})
	}
	db.Bookings().Put(&booking.Booking{ID: "e", DriverID: "DR2", Status: booking.StatusDriverAssigned})

	got, err := db.Bookings().ListActiveByDriver(context.Background(), "DR1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("active = %+v", got)
	}
}

func TestOldestPending(t *testing.T) {
	db := New()
	base := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	db.Bookings().Put(&booking.Booking{ID: "a", OriginatingOperatorID: "OP001", Status: booking.StatusPendingAssignment, CreatedAt: base.Add(5 * time.Minute)})
	db.Bookings().Put(&booking.Booking{ID: "b", PreferredOperatorID: "OP001", Status: booking.StatusPendingAssignment, CreatedAt: base})
	db.Bookings().Put(&booking.Booking{ID: "c", OriginatingOperatorID: "OP001", Status: booking.StatusDriverAssigned, CreatedAt: base.Add(-time.Hour)})
	db.Bookings().Put(&booking.Booking{ID: "d", OriginatingOperatorID: "OP002", Status: booking.StatusPendingAssignment, CreatedAt: base.Add(-time.Hour)})

	oldest, err := db.Bookings().OldestPending(context.Background(), "OP001")
	if err != nil {
		t.Fatal(err)
	}
	if oldest == nil || !oldest.Equal(base) {
		t.Fatalf("oldest = %v", oldest)
	}
	none, _ := db.Bookings().OldestPending(context.Background(), "OP404")
	if none != nil {
		t.Fatalf("expected nil, got %v", none)
	}
}

func TestDriverChangeFeed(t *testing.T) {
	db := New()
	ctx := context.Background()
	var got []events.Event
	db.OnChange(func(e events.Event) { got = append(got, e) })

	at := time.Date(2024, 9, 1, 9, 0, 0, 0, time.UTC)
	loc := types.Point{Lat: 51.5, Lng: -0.1}
	if err := db.Drivers().Upsert(ctx, &driver.Driver{ID: "DR1", Availability: driver.AvailabilityOnline, Location: &loc}); err != nil {
		t.Fatal(err)
	}
	if err := db.Drivers().SetPaused(ctx, "DR1", true, at); err != nil {
		t.Fatal(err)
	}
	if err := db.Drivers().SetAvailability(ctx, "DR1", driver.AvailabilityOffline, nil, at); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if got[0].Before != nil || got[0].After == nil {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].Before == nil || got[1].After != nil {
		t.Fatalf("offline event = %+v", got[1])
	}
	d, _ := db.Drivers().Get(ctx, "DR1")
	if d.Paused {
		t.Fatal("going offline clears the pause flag")
	}
}

func TestCounterIsPerNamespace(t *testing.T) {
	c := New().Counters()
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		n, _ := c.Increment(ctx, "bookings/OP001")
		if n != want {
			t.Fatalf("n = %d, want %d", n, want)
		}
	}
	if n, _ := c.Increment(ctx, "bookings/OP002"); n != 1 {
		t.Fatalf("other namespace = %d", n)
	}
}
