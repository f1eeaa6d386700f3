package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cabdispatch/internal/config"
	"cabdispatch/internal/infra"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/store/memory"
	"cabdispatch/internal/types"
)

var fixedNow = time.Date(2024, 7, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	db  *memory.DB
	svc *Service
}

func newFixture(t *testing.T, routes RouteEstimator) *fixture {
	t.Helper()
	db := memory.New()
	ctx := context.Background()
	for _, s := range []operator.Settings{
		{OperatorID: "OP001", DispatchMode: operator.ModeAuto, AutoDispatchEnabled: true, MaxAutoAcceptWaitTimeMinutes: 0},
		operator.DefaultSettings("OP002"),
	} {
		if err := db.Operators().PutSettings(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	svc := NewService(Deps{
		Bookings: db.Bookings(),
		Policy:   operator.NewPolicy(db.Operators(), operator.NewPendingWaitEstimator(db.Bookings())),
		Drivers:  db.Drivers(),
		Assigner: db.Offers(),
		Routes:   routes,
	}, config.DefaultDispatch(), zap.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return &fixture{db: db, svc: svc}
}

func (f *fixture) addDriver(t *testing.T, id types.ID, op string, loc *types.Point, mutate ...func(*driver.Driver)) {
	t.Helper()
	d := &driver.Driver{
		ID:             id,
		Name:           "Driver " + string(id),
		OperatorCode:   op,
		VehicleDetails: "Silver Octavia",
		Status:         driver.StatusActive,
		Availability:   driver.AvailabilityOnline,
		Location:       loc,
	}
	for _, m := range mutate {
		m(d)
	}
	if err := f.db.Drivers().Upsert(context.Background(), d); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addBooking(t *testing.T, id types.ID, mutate ...func(*booking.Booking)) {
	t.Helper()
	b := &booking.Booking{
		ID:                    id,
		DisplayID:             "OP001/00000001",
		PassengerID:           "CU001",
		PassengerName:         "Jo",
		PassengerPhone:        "+440000",
		OriginatingOperatorID: "OP001",
		Pickup:                types.Place{Point: types.Point{Lat: 53.6458, Lng: -1.7850}, Address: "Market St"},
		Dropoff:               types.Place{Point: types.Point{Lat: 53.7, Lng: -1.7}, Address: "Ring Rd"},
		FareEstimate:          types.Money{Amount: 1800, Currency: "GBP"},
		PaymentMethod:         "cash",
		IsAccountJob:          true,
		AccountJobPIN:         "9911",
		Status:                booking.StatusPendingAssignment,
		CreatedAt:             fixedNow,
		UpdatedAt:             fixedNow,
		TimeoutAt:             fixedNow.Add(30 * time.Minute),
	}
	for _, m := range mutate {
		m(b)
	}
	f.db.Bookings().Put(b)
}

func pt(lat, lng float64) *types.Point { return &types.Point{Lat: lat, Lng: lng} }

func TestHandleBookingCreatedAssignsNearest(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "OP001/DR0001", "OP001", pt(53.70, -1.70))
	f.addDriver(t, "OP001/DR0002", "OP001", pt(53.646, -1.786))
	f.addDriver(t, "OP002/DR0001", "OP002", pt(53.6458, -1.7850))
	f.addBooking(t, "b1")

	got, err := f.svc.HandleBookingCreated(context.Background(), "b1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != OutcomeAssigned {
		t.Fatalf("outcome = %s", got)
	}

	b, _ := f.db.Bookings().Get(context.Background(), "b1")
	if b.Status != booking.StatusDriverAssigned || b.DriverID != "OP001/DR0002" {
		t.Fatalf("booking = %s / %s", b.Status, b.DriverID)
	}
	if b.DispatchMethod != booking.DispatchAutoSystem || b.DriverVehicleDetails != "Silver Octavia" {
		t.Fatalf("driver fields not set: %+v", b)
	}

	offers := f.db.Offers().ListByBooking("b1")
	if len(offers) != 1 {
		t.Fatalf("expected one offer, got %d", len(offers))
	}
	o := offers[0]
	if b.CurrentOfferID != o.ID {
		t.Fatalf("currentOfferId = %s, offer = %s", b.CurrentOfferID, o.ID)
	}
	if o.Status != offer.StatusPending || o.DriverID != "OP001/DR0002" {
		t.Fatalf("offer = %+v", o)
	}
	if !o.CreatedAt.Equal(fixedNow) || o.ExpiresAt.Sub(o.CreatedAt) != 30*time.Second {
		t.Fatalf("offer window = %s..%s", o.CreatedAt, o.ExpiresAt)
	}
	if o.Details.AccountJobPIN != "9911" || o.Details.FareEstimate.Amount != 1800 || o.Details.PickupEtaMinutes < 1 {
		t.Fatalf("details snapshot = %+v", o.Details)
	}
	if o.Details.DistanceToPickupMeters <= 0 {
		t.Fatalf("distance = %f", o.Details.DistanceToPickupMeters)
	}
}

func TestHandleBookingCreatedOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		want    Outcome
		wantErr bool
	}{
		{
			name: "not pending",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) { b.Status = booking.StatusCancelledByPassenger })
			},
			want: OutcomeSkippedNotPending,
		},
		{
			name: "no operator",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) { b.OriginatingOperatorID = "" })
			},
			want: OutcomeNoOperator,
		},
		{
			name: "preferred operator used",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) {
					b.OriginatingOperatorID = ""
					b.PreferredOperatorID = "OP001"
				})
			},
			want: OutcomeAssigned,
		},
		{
			name: "manual operator",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP002/DR0001", "OP002", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) { b.OriginatingOperatorID = "OP002" })
			},
			want: OutcomePolicyBlocked,
		},
		{
			name: "operator without settings",
			setup: func(t *testing.T, f *fixture) {
				f.addBooking(t, "b1", func(b *booking.Booking) { b.OriginatingOperatorID = "OP009" })
			},
			want: OutcomePolicyBlocked,
		},
		{
			name: "invalid pickup",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) { b.Pickup.Lat = 95 })
			},
			want: OutcomeInvalidPickup,
		},
		{
			name: "pickup location never stored",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) { b.Pickup = infra.PlaceDoc{Address: "Market St"}.Place() })
			},
			want: OutcomeInvalidPickup,
		},
		{
			name: "no drivers",
			setup: func(t *testing.T, f *fixture) {
				f.addBooking(t, "b1")
			},
			want: OutcomeNoDriver,
		},
		{
			name: "only paused, offline, inactive or declined drivers",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786), func(d *driver.Driver) { d.Paused = true })
				f.addDriver(t, "OP001/DR0002", "OP001", nil, func(d *driver.Driver) { d.Availability = driver.AvailabilityOffline })
				f.addDriver(t, "OP001/DR0003", "OP001", pt(53.646, -1.786), func(d *driver.Driver) { d.Status = driver.StatusInactive })
				f.addDriver(t, "OP001/DR0004", "OP001", pt(53.646, -1.786))
				f.addBooking(t, "b1", func(b *booking.Booking) { b.DeclinedDriverIDs = []types.ID{"OP001/DR0004"} })
			},
			want: OutcomeNoDriver,
		},
		{
			name: "driver without location",
			setup: func(t *testing.T, f *fixture) {
				f.addDriver(t, "OP001/DR0001", "OP001", nil)
				f.addBooking(t, "b1")
			},
			want: OutcomeNoDriver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(t, f)
			before, _ := f.db.Bookings().Get(context.Background(), "b1")

			got, err := f.svc.HandleBookingCreated(context.Background(), "b1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
			if tt.want == OutcomeAssigned {
				return
			}
			after, _ := f.db.Bookings().Get(context.Background(), "b1")
			if after.Status != before.Status || after.DriverID != "" || after.CurrentOfferID != "" {
				t.Fatalf("booking changed on %s: %+v", tt.want, after)
			}
			if n := len(f.db.Offers().ListByBooking("b1")); n != 0 {
				t.Fatalf("expected no offers, got %d", n)
			}
		})
	}
}

func TestHandleBookingCreatedIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
	f.addBooking(t, "b1")
	ctx := context.Background()

	if got, err := f.svc.HandleBookingCreated(ctx, "b1"); err != nil || got != OutcomeAssigned {
		t.Fatalf("first = %s, %v", got, err)
	}
	if got, err := f.svc.HandleBookingCreated(ctx, "b1"); err != nil || got != OutcomeSkippedNotPending {
		t.Fatalf("second = %s, %v", got, err)
	}
	if n := len(f.db.Offers().ListByBooking("b1")); n != 1 {
		t.Fatalf("expected one offer, got %d", n)
	}
}

func TestConcurrentHandleBookingCreated(t *testing.T) {
	f := newFixture(t, nil)
	f.addDriver(t, "OP001/DR0001", "OP001", pt(53.646, -1.786))
	f.addDriver(t, "OP001/DR0002", "OP001", pt(53.65, -1.79))
	f.addBooking(t, "b1")
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.HandleBookingCreated(ctx, "b1")
			if err != nil {
				errs <- err
				return
			}
			outcomes <- got
		}()
	}
	wg.Wait()
	close(outcomes)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	assigned := 0
	for o := range outcomes {
		switch o {
		case OutcomeAssigned:
			assigned++
		case OutcomeConflict, OutcomeSkippedNotPending:
		default:
			t.Fatalf("unexpected outcome %s", o)
		}
	}
	if assigned != 1 {
		t.Fatalf("expected exactly one assignment, got %d", assigned)
	}
	if n := len(f.db.Offers().ListByBooking("b1")); n != 1 {
		t.Fatalf("expected one offer, got %d", n)
	}
}

type stubRoutes struct {
	d   time.Duration
	err error
}

func (s stubRoutes) DriveTime(context.Context, types.Point, types.Point) (time.Duration, error) {
	return s.d, s.err
}

func TestPickupEtaUsesRoutesWithFallback(t *testing.T) {
	tests := []struct {
		name   string
		routes RouteEstimator
		want   int
	}{
		{name: "road estimate", routes: stubRoutes{d: 7*time.Minute + 20*time.Second}, want: 7},
		{name: "short road estimate", routes: stubRoutes{d: 10 * time.Second}, want: 1},
		{name: "fallback on error", routes: stubRoutes{err: errors.New("quota")}, want: 10},
		{name: "no routes", routes: nil, want: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.routes)
			got := f.svc.pickupEta(context.Background(), types.Point{}, types.Point{}, 5000)
			if got != tt.want {
				t.Fatalf("eta = %d, want %d", got, tt.want)
			}
		})
	}
}
