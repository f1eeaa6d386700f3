package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cabdispatch/internal/config"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/notification"
	"cabdispatch/internal/store/memory"
	"cabdispatch/internal/types"
)

var now = time.Date(2024, 9, 1, 22, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu   sync.Mutex
	got  []notification.Notification
	fail bool
}

func (r *recordingSink) Notify(_ context.Context, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	if r.fail {
		return errors.New("no device token")
	}
	return nil
}

func seed(db *memory.DB, id types.ID, status booking.Status, timeoutAt time.Time, passenger types.ID) {
	db.Bookings().Put(&booking.Booking{
		ID:          id,
		DisplayID:   "OP001/" + string(id),
		PassengerID: passenger,
		Status:      status,
		CreatedAt:   timeoutAt.Add(-30 * time.Minute),
		TimeoutAt:   timeoutAt,
	})
}

func newSweeper(store Store, sink notification.Sink, locker Locker) *Sweeper {
	return New(store, sink, nil, nil, locker, config.DefaultDispatch(), zap.NewNop())
}

func TestSweepReclaimsOnlyTimedOutPending(t *testing.T) {
	db := memory.New()
	seed(db, "late", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU001")
	seed(db, "fresh", booking.StatusPendingAssignment, now.Add(time.Minute), "CU002")
	seed(db, "exact", booking.StatusPendingAssignment, now, "CU003")
	seed(db, "assigned", booking.StatusDriverAssigned, now.Add(-time.Hour), "CU004")
	seed(db, "anonymous", booking.StatusPendingAssignment, now.Add(-2*time.Minute), "")
	sink := &recordingSink{}

	res, err := newSweeper(db.Bookings(), sink, nil).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res != (Result{Found: 2, Processed: 2, Notifications: 1}) {
		t.Fatalf("result = %+v", res)
	}

	ctx := context.Background()
	late, _ := db.Bookings().Get(ctx, "late")
	if late.Status != booking.StatusCancelledNoDriver || late.CancellationReason != booking.ReasonTimeoutNoDriver {
		t.Fatalf("late = %s / %s", late.Status, late.CancellationReason)
	}
	if late.CancelledAt == nil || !late.CancelledAt.Equal(now) {
		t.Fatalf("cancelledAt = %v", late.CancelledAt)
	}
	for id, want := range map[types.ID]booking.Status{
		"fresh":     booking.StatusPendingAssignment,
		"exact":     booking.StatusPendingAssignment,
		"assigned":  booking.StatusDriverAssigned,
		"anonymous": booking.StatusCancelledNoDriver,
	} {
		b, _ := db.Bookings().Get(ctx, id)
		if b.Status != want {
			t.Errorf("%s status = %s, want %s", id, b.Status, want)
		}
	}

	stored := db.Notifications()
	if len(stored) != 1 {
		t.Fatalf("stored notifications = %d", len(stored))
	}
	n := stored[0]
	if n.UserID != "CU001" || n.Type != notification.TypeBookingTimeout || n.RelatedBookingID != "late" {
		t.Fatalf("notification = %+v", n)
	}
	if len(sink.got) != 1 || sink.got[0].ID != n.ID {
		t.Fatalf("sink received %+v", sink.got)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	db := memory.New()
	seed(db, "b1", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU001")
	s := newSweeper(db.Bookings(), &recordingSink{}, nil)

	if _, err := s.Sweep(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	res, err := s.Sweep(context.Background(), now.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Fatalf("second sweep = %+v", res)
	}
	if n := len(db.Notifications()); n != 1 {
		t.Fatalf("expected one notification in total, got %d", n)
	}
}

func TestSweepProcessesInChunks(t *testing.T) {
	db := memory.New()
	const total = 2*ChunkSize + 50
	for i := 0; i < total; i++ {
		seed(db, types.ID(fmt.Sprintf("b%04d", i)), booking.StatusPendingAssignment, now.Add(-time.Duration(i+1)*time.Second), "CU001")
	}
	chunks := &chunkCounter{Store: db.Bookings()}

	res, err := newSweeper(chunks, nil, nil).Sweep(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Found != total || res.Processed != total || res.Notifications != total {
		t.Fatalf("result = %+v", res)
	}
	if chunks.calls != 3 {
		t.Fatalf("reclaim calls = %d, want 3", chunks.calls)
	}
	if chunks.max > ChunkSize {
		t.Fatalf("chunk of %d exceeds %d", chunks.max, ChunkSize)
	}
}

type chunkCounter struct {
	Store
	calls int
	max   int
}

func (c *chunkCounter) Reclaim(ctx context.Context, r []booking.Reclaim, now time.Time) ([]booking.Reclaim, error) {
	c.calls++
	if len(r) > c.max {
		c.max = len(r)
	}
	return c.Store.Reclaim(ctx, r, now)
}

// assignsDuringSweep assigns a booking after it was listed but before the reclaim commits.
type assignsDuringSweep struct {
	Store
	db *memory.DB
	id types.ID
}

func (a assignsDuringSweep) Reclaim(ctx context.Context, r []booking.Reclaim, now time.Time) ([]booking.Reclaim, error) {
	b, _ := a.db.Bookings().Get(ctx, a.id)
	b.Status = booking.StatusDriverAssigned
	b.DriverID = "OP001/DR0001"
	a.db.Bookings().Put(b)
	return a.Store.Reclaim(ctx, r, now)
}

func TestSweepLeavesConcurrentlyAssignedBooking(t *testing.T) {
	db := memory.New()
	seed(db, "racing", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU001")
	seed(db, "idle", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU002")
	store := assignsDuringSweep{Store: db.Bookings(), db: db, id: "racing"}

	res, err := newSweeper(store, nil, nil).Sweep(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Found != 2 || res.Processed != 1 || res.Notifications != 1 {
		t.Fatalf("result = %+v", res)
	}
	b, _ := db.Bookings().Get(context.Background(), "racing")
	if b.Status != booking.StatusDriverAssigned {
		t.Fatalf("assigned booking was cancelled: %s", b.Status)
	}
	for _, n := range db.Notifications() {
		if n.RelatedBookingID == "racing" {
			t.Fatal("no notification expected for the assigned booking")
		}
	}
}

func TestSweepSurvivesDeliveryFailure(t *testing.T) {
	db := memory.New()
	seed(db, "b1", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU001")
	seed(db, "b2", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU002")
	sink := &recordingSink{fail: true}

	res, err := newSweeper(db.Bookings(), sink, nil).Sweep(context.Background(), now)
	if err != nil {
		t.Fatalf("delivery failure must not fail the sweep: %v", err)
	}
	if res.Processed != 2 || len(sink.got) != 2 {
		t.Fatalf("result = %+v, delivered = %d", res, len(sink.got))
	}
}

type failingStore struct{ Store }

func (failingStore) ListTimedOut(context.Context, time.Time, int) ([]booking.Booking, error) {
	return nil, errors.New("unavailable")
}

func TestSweepReturnsQueryError(t *testing.T) {
	if _, err := newSweeper(failingStore{}, nil, nil).Sweep(context.Background(), now); err == nil {
		t.Fatal("expected error")
	}
}

type stubLocker struct {
	ok    bool
	calls int
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	l.calls++
	return l.ok, nil
}

func TestRunOnceHonoursLock(t *testing.T) {
	db := memory.New()
	seed(db, "b1", booking.StatusPendingAssignment, now.Add(-time.Minute), "CU001")

	held := &stubLocker{ok: false}
	s := newSweeper(db.Bookings(), nil, held)
	s.now = func() time.Time { return now }
	s.runOnce(context.Background())
	b, _ := db.Bookings().Get(context.Background(), "b1")
	if b.Status != booking.StatusPendingAssignment {
		t.Fatal("sweep ran without the lock")
	}

	free := &stubLocker{ok: true}
	s = newSweeper(db.Bookings(), nil, free)
	s.now = func() time.Time { return now }
	s.runOnce(context.Background())
	b, _ = db.Bookings().Get(context.Background(), "b1")
	if b.Status != booking.StatusCancelledNoDriver {
		t.Fatalf("status = %s", b.Status)
	}
	if held.calls != 1 || free.calls != 1 {
		t.Fatalf("lock calls = %d / %d", held.calls, free.calls)
	}
}
