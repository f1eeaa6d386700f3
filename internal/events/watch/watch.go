// README: Firestore snapshot watchers that turn document changes into bus events.
package watch

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/location"
	"cabdispatch/internal/types"
)

const maxBackoff = 30 * time.Second

// Publisher is the part of the bus the watchers feed.
type Publisher interface {
	Publish(ctx context.Context, e events.Event)
}

type Kind int

const (
	Added Kind = iota
	Modified
	Removed
)

// Change is one document change from a listener, reduced to what dispatch needs.
type Change struct {
	Kind     Kind
	ID       types.ID
	Location *types.Point
}

// Watchers listen on the pending bookings and online drivers queries.
type Watchers struct {
	client    *firestore.Client
	positions location.PositionCache
	bus       Publisher
	log       *zap.Logger
}

func New(client *firestore.Client, positions location.PositionCache, bus Publisher, log *zap.Logger) *Watchers {
	return &Watchers{
		client:    client,
		positions: positions,
		bus:       bus,
		log:       log.With(zap.String("component", "watch")),
	}
}

// RunPendingBookings publishes TopicBookingPending for every booking that enters
// pending_assignment, including those already pending when the listener starts.
func (w *Watchers) RunPendingBookings(ctx context.Context) {
	q := w.client.Collection(booking.Collection).Where("status", "==", string(booking.StatusPendingAssignment))
	w.listen(ctx, "bookings", q, func(ch Change) {
		if e, ok := BookingEvent(ch); ok {
			w.bus.Publish(ctx, e)
		}
	})
}

// RunOnlineDrivers publishes TopicDriverUpdated whenever an online driver's position differs
// from the last one seen. A driver leaving the query clears the cached position.
func (w *Watchers) RunOnlineDrivers(ctx context.Context) {
	q := w.client.Collection(driver.Collection).Where("availability", "==", string(driver.AvailabilityOnline))
	w.listen(ctx, "drivers", q, func(ch Change) {
		e, ok, err := DriverEvent(ctx, w.positions, ch)
		if err != nil {
			w.log.Error("swap driver position failed", zap.String("driver_id", string(ch.ID)), zap.Error(err))
			return
		}
		if ok {
			w.bus.Publish(ctx, e)
		}
	})
}

// BookingEvent maps a pending-query change to a bus event. Only additions matter:
// a booking leaving the query was assigned or cancelled.
func BookingEvent(ch Change) (events.Event, bool) {
	if ch.Kind != Added {
		return events.Event{}, false
	}
	return events.Event{Topic: events.TopicBookingPending, BookingID: ch.ID}, true
}

// DriverEvent records the new position in the cache and reports a move when it changed.
func DriverEvent(ctx context.Context, cache location.PositionCache, ch Change) (events.Event, bool, error) {
	var next *types.Point
	if ch.Kind != Removed {
		next = ch.Location
	}
	prev, err := cache.Swap(ctx, ch.ID, next)
	if err != nil {
		return events.Event{}, false, err
	}
	if next == nil || types.SamePosition(prev, next) {
		return events.Event{}, false, nil
	}
	return events.Event{Topic: events.TopicDriverUpdated, DriverID: ch.ID, Before: prev, After: next}, true, nil
}

func (w *Watchers) listen(ctx context.Context, name string, q firestore.Query, fn func(Change)) {
	log := w.log.With(zap.String("query", name))
	backoff := time.Second
	for ctx.Err() == nil {
		err := w.consume(ctx, q, fn, func() { backoff = time.Second })
		if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
			break
		}
		log.Warn("listener stopped; reconnecting", zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	log.Info("listener stopped")
}

func (w *Watchers) consume(ctx context.Context, q firestore.Query, fn func(Change), healthy func()) error {
	it := q.Snapshots(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err != nil {
			return err
		}
		healthy()
		for _, dc := range snap.Changes {
			ch, err := toChange(dc)
			if err != nil {
				w.log.Warn("decode document failed", zap.String("doc_id", dc.Doc.Ref.ID), zap.Error(err))
				continue
			}
			fn(ch)
		}
	}
}

func toChange(dc firestore.DocumentChange) (Change, error) {
	ch := Change{ID: types.ID(dc.Doc.Ref.ID)}
	switch dc.Kind {
	case firestore.DocumentAdded:
		ch.Kind = Added
	case firestore.DocumentModified:
		ch.Kind = Modified
	default:
		ch.Kind = Removed
		return ch, nil
	}
	if dc.Doc.Ref.Parent.ID == driver.Collection {
		d, err := driver.FromSnapshot(dc.Doc)
		if err != nil {
			return ch, err
		}
		ch.Location = d.Location
	}
	return ch, nil
}
