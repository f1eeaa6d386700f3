package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/counter"
	"cabdispatch/internal/store/memory"
	"cabdispatch/internal/types"
)

type memEvents struct {
	mu     sync.Mutex
	events []booking.Event
	fail   bool
}

func (m *memEvents) Append(_ context.Context, e *booking.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	m.events = append(m.events, *e)
	return nil
}

type capturePublisher struct {
	got []events.DomainEvent
}

func (c *capturePublisher) Publish(_ context.Context, e events.DomainEvent) error {
	c.got = append(c.got, e)
	return nil
}

func place(lat, lng float64, addr string) types.Place {
	return types.Place{Point: types.Point{Lat: lat, Lng: lng}, Address: addr}
}

func createCmd() booking.CreateCommand {
	return booking.CreateCommand{
		PassengerID:           "CU001",
		PassengerName:         "Jo",
		OriginatingOperatorID: "OP001",
		Pickup:                place(51.5007, -0.1246, "Westminster"),
		Dropoff:               place(51.5033, -0.1195, "London Eye"),
		FareEstimate:          types.Money{Amount: 1250, Currency: "GBP"},
		PaymentMethod:         "card",
	}
}

func newService(db *memory.DB, log booking.EventLog) *booking.Service {
	return booking.NewService(db.Bookings(), log, counter.NewService(db.Counters()), 30*time.Minute, zap.NewNop())
}

func TestCreate(t *testing.T) {
	db := memory.New()
	audit := &memEvents{}
	var pending []types.ID
	db.OnChange(func(e events.Event) {
		if e.Topic == events.TopicBookingPending {
			pending = append(pending, e.BookingID)
		}
	})
	svc := newService(db, audit)

	b, err := svc.Create(context.Background(), createCmd())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != booking.StatusPendingAssignment {
		t.Fatalf("status = %s", b.Status)
	}
	if b.DisplayID != "OP001/00000001" {
		t.Fatalf("display id = %q", b.DisplayID)
	}
	if got := b.TimeoutAt.Sub(b.CreatedAt); got != 30*time.Minute {
		t.Fatalf("timeout window = %s", got)
	}
	if len(pending) != 1 || pending[0] != b.ID {
		t.Fatalf("pending events = %v", pending)
	}
	if len(audit.events) != 1 || audit.events[0].FromStatus != booking.StatusNone {
		t.Fatalf("audit = %+v", audit.events)
	}

	second, err := svc.Create(context.Background(), createCmd())
	if err != nil {
		t.Fatal(err)
	}
	if second.DisplayID != "OP001/00000002" {
		t.Fatalf("second display id = %q", second.DisplayID)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newService(memory.New(), nil)
	noPassenger := createCmd()
	noPassenger.PassengerID = ""
	badPickup := createCmd()
	badPickup.Pickup = place(200, 0, "nowhere")
	noOperator := createCmd()
	noOperator.OriginatingOperatorID = ""

	for name, cmd := range map[string]booking.CreateCommand{
		"no passenger": noPassenger,
		"bad pickup":   badPickup,
		"no operator":  noOperator,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), cmd); !errors.Is(err, booking.ErrBadRequest) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func assigned(db *memory.DB, id, driverID types.ID) {
	db.Bookings().Put(&booking.Booking{
		ID:          id,
		PassengerID: "CU001",
		Status:      booking.StatusDriverAssigned,
		DriverID:    driverID,
	})
}

func TestRideProgress(t *testing.T) {
	db := memory.New()
	audit := &memEvents{}
	svc := newService(db, audit)
	ctx := context.Background()
	assigned(db, "b1", "DR1")
	cmd := booking.DriverCommand{BookingID: "b1", DriverID: "DR1"}

	steps := []struct {
		name string
		run  func(context.Context, booking.DriverCommand) (*booking.Booking, error)
		want booking.Status
	}{
		{"arrive", svc.Arrive, booking.StatusArrivedAtPickup},
		{"start", svc.Start, booking.StatusInProgress},
		{"wait and return", svc.StartWaitAndReturn, booking.StatusInProgressWaitAndReturn},
		{"complete", svc.Complete, booking.StatusCompleted},
	}
	for _, st := range steps {
		b, err := st.run(ctx, cmd)
		if err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if b.Status != st.want {
			t.Fatalf("%s: status = %s", st.name, b.Status)
		}
	}
	b, _ := svc.Get(ctx, "b1")
	if b.ArrivedAt == nil || b.StartedAt == nil || b.CompletedAt == nil {
		t.Fatalf("timestamps missing: %+v", b)
	}
	if len(audit.events) != 4 {
		t.Fatalf("audit events = %d", len(audit.events))
	}
	if _, err := svc.Arrive(ctx, cmd); !errors.Is(err, booking.ErrInvalidState) {
		t.Fatalf("arrive after complete: %v", err)
	}
}

func TestProgressRejectsOtherDriver(t *testing.T) {
	db := memory.New()
	svc := newService(db, nil)
	assigned(db, "b1", "DR1")

	if _, err := svc.Arrive(context.Background(), booking.DriverCommand{BookingID: "b1", DriverID: "DR2"}); !errors.Is(err, booking.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Start(context.Background(), booking.DriverCommand{BookingID: "b1", DriverID: "DR1"}); !errors.Is(err, booking.ErrInvalidState) {
		t.Fatalf("start before arrival: %v", err)
	}
	if _, err := svc.Arrive(context.Background(), booking.DriverCommand{BookingID: "nope", DriverID: "DR1"}); !errors.Is(err, booking.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancel(t *testing.T) {
	cases := []struct {
		name    string
		status  booking.Status
		cmd     booking.CancelCommand
		want    booking.Status
		wantErr error
	}{
		{"passenger while pending", booking.StatusPendingAssignment, booking.CancelCommand{ActorType: booking.ActorPassenger, ActorID: "CU001"}, booking.StatusCancelledByPassenger, nil},
		{"operator while assigned", booking.StatusDriverAssigned, booking.CancelCommand{ActorType: booking.ActorOperator, ActorID: "OP001"}, booking.StatusCancelledByOperator, nil},
		{"other passenger", booking.StatusPendingAssignment, booking.CancelCommand{ActorType: booking.ActorPassenger, ActorID: "CU999"}, "", booking.ErrConflict},
		{"during trip", booking.StatusInProgress, booking.CancelCommand{ActorType: booking.ActorPassenger, ActorID: "CU001"}, "", booking.ErrInvalidState},
		{"driver cannot cancel", booking.StatusDriverAssigned, booking.CancelCommand{ActorType: booking.ActorDriver, ActorID: "DR1"}, "", booking.ErrBadRequest},
		{"other operator", booking.StatusDriverAssigned, booking.CancelCommand{ActorType: booking.ActorOperator, ActorID: "OP002"}, "", booking.ErrConflict},
		{"operator without id", booking.StatusPendingAssignment, booking.CancelCommand{ActorType: booking.ActorOperator}, "", booking.ErrConflict},
		{"admin for any operator", booking.StatusDriverAssigned, booking.CancelCommand{ActorType: booking.ActorAdmin, ActorID: "root"}, booking.StatusCancelledByOperator, nil},
		{"already completed", booking.StatusCompleted, booking.CancelCommand{ActorType: booking.ActorOperator, ActorID: "OP001"}, "", booking.ErrInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := memory.New()
			pub := &capturePublisher{}
			svc := newService(db, nil).WithPublisher(pub)
			db.Bookings().Put(&booking.Booking{ID: "b1", PassengerID: "CU001", OriginatingOperatorID: "OP001", Status: tc.status, DriverID: "DR1"})
			tc.cmd.BookingID = "b1"

			b, err := svc.Cancel(context.Background(), tc.cmd)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				if len(pub.got) != 0 {
					t.Fatal("nothing should be published on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if b.Status != tc.want || b.CancelledAt == nil || b.CancellationReason == "" {
				t.Fatalf("booking = %+v", b)
			}
			if len(pub.got) != 1 || pub.got[0].Type != events.TypeBookingCancelled {
				t.Fatalf("published = %+v", pub.got)
			}
		})
	}
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	db := memory.New()
	svc := newService(db, &memEvents{fail: true})
	assigned(db, "b1", "DR1")
	if _, err := svc.Arrive(context.Background(), booking.DriverCommand{BookingID: "b1", DriverID: "DR1"}); err != nil {
		t.Fatalf("Arrive: %v", err)
	}
}

func TestConcurrentArriveSingleWinner(t *testing.T) {
	db := memory.New()
	svc := newService(db, nil)
	assigned(db, "b1", "DR1")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Arrive(context.Background(), booking.DriverCommand{BookingID: "b1", DriverID: "DR1"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, booking.ErrConflict), errors.Is(err, booking.ErrInvalidState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("winners = %d, want 1", ok)
	}
}
