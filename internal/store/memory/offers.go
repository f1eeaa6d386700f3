package memory

import (
	"context"
	"sort"
	"time"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/types"
)

type OfferStore struct {
	db *DB
}

func cloneOffer(o *offer.Offer) *offer.Offer {
	c := *o
	c.Details.Stops = append([]types.Place(nil), o.Details.Stops...)
	if o.RespondedAt != nil {
		t := *o.RespondedAt
		c.RespondedAt = &t
	}
	return &c
}

func (s *OfferStore) Get(_ context.Context, id types.ID) (*offer.Offer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	o, ok := s.db.offers[id]
	if !ok {
		return nil, offer.ErrNotFound
	}
	return cloneOffer(o), nil
}

func (s *OfferStore) Assign(_ context.Context, bookingID types.ID, build offer.BuildFunc) (*offer.Offer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cur, ok := s.db.bookings[bookingID]
	if !ok {
		return nil, booking.ErrNotFound
	}
	b := cloneBooking(cur)
	o, err := build(b)
	if err != nil {
		return nil, err
	}
	if _, exists := s.db.offers[o.ID]; exists {
		return nil, offer.ErrConflict
	}
	s.db.bookings[bookingID] = b
	s.db.offers[o.ID] = cloneOffer(o)
	return cloneOffer(o), nil
}

func (s *OfferStore) Resolve(_ context.Context, offerID types.ID, fn offer.ResolveFunc) (*offer.Offer, error) {
	s.db.mu.Lock()
	curOffer, ok := s.db.offers[offerID]
	if !ok {
		s.db.mu.Unlock()
		return nil, offer.ErrNotFound
	}
	curBooking, ok := s.db.bookings[curOffer.BookingID]
	if !ok {
		s.db.mu.Unlock()
		return nil, booking.ErrNotFound
	}
	o := cloneOffer(curOffer)
	b := cloneBooking(curBooking)
	if err := fn(o, b); err != nil {
		s.db.mu.Unlock()
		return nil, err
	}
	requeued := curBooking.Status != booking.StatusPendingAssignment && b.Status == booking.StatusPendingAssignment
	s.db.offers[offerID] = o
	s.db.bookings[b.ID] = b
	out := cloneOffer(o)
	s.db.mu.Unlock()
	if requeued {
		s.db.emit([]events.Event{pendingEvent(b.ID)})
	}
	return out, nil
}

func (s *OfferStore) ListDue(_ context.Context, now time.Time, limit int) ([]offer.Offer, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []offer.Offer
	for _, o := range s.db.offers {
		if o.Status == offer.StatusPending && o.Expired(now) {
			out = append(out, *cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByBooking returns every offer ever made for a booking, oldest first.
func (s *OfferStore) ListByBooking(bookingID types.ID) []offer.Offer {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []offer.Offer
	for _, o := range s.db.offers {
		if o.BookingID == bookingID {
			out = append(out, *cloneOffer(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
