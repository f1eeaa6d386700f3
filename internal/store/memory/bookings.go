package memory

import (
	"context"
	"sort"
	"time"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/types"
)

type BookingStore struct {
	db *DB
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	c.Stops = append([]types.Place(nil), b.Stops...)
	c.DeclinedDriverIDs = append([]types.ID(nil), b.DeclinedDriverIDs...)
	c.DriverCurrentLocation = clonePoint(b.DriverCurrentLocation)
	if b.DriverEtaMinutes != nil {
		eta := *b.DriverEtaMinutes
		c.DriverEtaMinutes = &eta
	}
	return &c
}

func pendingEvent(id types.ID) events.Event {
	return events.Event{Topic: events.TopicBookingPending, BookingID: id}
}

func (s *BookingStore) Create(_ context.Context, b *booking.Booking) error {
	s.db.mu.Lock()
	if _, ok := s.db.bookings[b.ID]; ok {
		s.db.mu.Unlock()
		return booking.ErrConflict
	}
	s.db.bookings[b.ID] = cloneBooking(b)
	s.db.mu.Unlock()
	if b.Status == booking.StatusPendingAssignment {
		s.db.emit([]events.Event{pendingEvent(b.ID)})
	}
	return nil
}

func (s *BookingStore) Get(_ context.Context, id types.ID) (*booking.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	b, ok := s.db.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return cloneBooking(b), nil
}

func (s *BookingStore) Transition(_ context.Context, t booking.Transition) (*booking.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.mutateLocked(t.BookingID, t.Apply)
}

func (s *BookingStore) UpdateDriverPosition(_ context.Context, u booking.PositionUpdate) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, err := s.mutateLocked(u.BookingID, u.Apply)
	return err
}

func (s *BookingStore) mutateLocked(id types.ID, fn func(*booking.Booking) error) (*booking.Booking, error) {
	cur, ok := s.db.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	b := cloneBooking(cur)
	if err := fn(b); err != nil {
		return nil, err
	}
	s.db.bookings[id] = b
	return cloneBooking(b), nil
}

func (s *BookingStore) ListActiveByDriver(_ context.Context, driverID types.ID) ([]booking.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.db.bookings {
		if b.DriverID == driverID && b.Status.Active() {
			out = append(out, *cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *BookingStore) ListTimedOut(_ context.Context, now time.Time, limit int) ([]booking.Booking, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.db.bookings {
		if b.Status == booking.StatusPendingAssignment && b.TimeoutAt.Before(now) {
			out = append(out, *cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimeoutAt.Equal(out[j].TimeoutAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].TimeoutAt.Before(out[j].TimeoutAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BookingStore) Reclaim(_ context.Context, reclaims []booking.Reclaim, now time.Time) ([]booking.Reclaim, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var applied []booking.Reclaim
	for _, r := range reclaims {
		cur, ok := s.db.bookings[r.BookingID]
		if !ok {
			continue
		}
		b := cloneBooking(cur)
		if !booking.TimeOut(b, now) {
			continue
		}
		s.db.bookings[r.BookingID] = b
		if r.Notification != nil {
			s.db.notifications = append(s.db.notifications, *r.Notification)
		}
		applied = append(applied, r)
	}
	return applied, nil
}

func (s *BookingStore) OldestPending(_ context.Context, operatorID string) (*time.Time, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var oldest *time.Time
	for _, b := range s.db.bookings {
		if b.Status != booking.StatusPendingAssignment || b.OperatorID() != operatorID {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(*oldest) {
			created := b.CreatedAt
			oldest = &created
		}
	}
	return oldest, nil
}

// Put stores b as is, bypassing state checks; used to seed fixtures.
func (s *BookingStore) Put(b *booking.Booking) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.bookings[b.ID] = cloneBooking(b)
}
