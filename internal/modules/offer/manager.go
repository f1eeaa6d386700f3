// README: Offer lifecycle manager; accept, decline, expire and the driver countdown.
package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/observability"
	"cabdispatch/internal/types"
)

var (
	ErrNotFound     = errors.New("offer not found")
	ErrConflict     = errors.New("offer state conflict")
	ErrOfferExpired = errors.New("offer expired")
	ErrBadRequest   = errors.New("bad request")
)

const expireBatch = 100

type BookingReader interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
}

// Recorder receives booking audit events for transitions made here.
type Recorder interface {
	Record(ctx context.Context, e *booking.Event)
}

type Manager struct {
	store     Store
	bookings  BookingReader
	audit     Recorder
	publisher events.Publisher
	log       *zap.Logger
	tick      time.Duration
	now       func() time.Time
}

func NewManager(store Store, bookings BookingReader, audit Recorder, publisher events.Publisher, expiryTick time.Duration, log *zap.Logger) *Manager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Manager{
		store:     store,
		bookings:  bookings,
		audit:     audit,
		publisher: publisher,
		log:       log.With(zap.String("component", "offer")),
		tick:      expiryTick,
		now:       time.Now,
	}
}

type AcceptCommand struct {
	BookingID types.ID
	DriverID  types.ID
	// Now overrides the manager clock when set.
	Now time.Time
}

type DeclineCommand struct {
	BookingID types.ID
	DriverID  types.ID
	Now       time.Time
}

func (m *Manager) Get(ctx context.Context, id types.ID) (*Offer, error) {
	return m.store.Get(ctx, id)
}

// Accept confirms the booking's current offer for the driver it was sent to.
// An offer found past its window is expired on the spot and ErrOfferExpired returned.
func (m *Manager) Accept(ctx context.Context, cmd AcceptCommand) (*Offer, error) {
	if cmd.BookingID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	now := m.at(cmd.Now)
	offerID, err := m.currentOffer(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}

	o, err := m.store.Resolve(ctx, offerID, func(o *Offer, b *booking.Booking) error {
		if o.DriverID != cmd.DriverID || o.Status != StatusPending {
			return ErrConflict
		}
		if b.Status != booking.StatusDriverAssigned || b.DriverID != cmd.DriverID || b.CurrentOfferID != o.ID {
			return ErrConflict
		}
		if o.Expired(now) {
			return ErrOfferExpired
		}
		o.Status = StatusAccepted
		o.RespondedAt = &now
		b.AcceptedAt = &now
		b.UpdatedAt = now
		return nil
	})
	if errors.Is(err, ErrOfferExpired) {
		if _, expErr := m.Expire(ctx, offerID, now); expErr != nil && !errors.Is(expErr, ErrConflict) {
			m.log.Warn("expire on late accept failed", zap.String("offer_id", string(offerID)), zap.Error(expErr))
		}
		return nil, ErrOfferExpired
	}
	if err != nil {
		return nil, err
	}
	observability.OffersResolvedTotal.WithLabelValues(string(StatusAccepted)).Inc()
	m.publish(ctx, events.TypeOfferAccepted, o, now)
	return o, nil
}

// Decline releases the booking back to the pending pool and excludes this driver from the next attempt.
func (m *Manager) Decline(ctx context.Context, cmd DeclineCommand) (*Offer, error) {
	if cmd.BookingID == "" || cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	offerID, err := m.currentOffer(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	return m.release(ctx, offerID, cmd.DriverID, StatusDeclined, m.at(cmd.Now))
}

// Expire closes an offer whose window has passed; it is a conflict before ExpiresAt or once resolved.
func (m *Manager) Expire(ctx context.Context, offerID types.ID, now time.Time) (*Offer, error) {
	return m.release(ctx, offerID, "", StatusExpired, m.at(now))
}

// ExpireDue expires every pending offer past its window. One failing offer does not stop the rest.
func (m *Manager) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	now = m.at(now)
	expired := 0
	for {
		due, err := m.store.ListDue(ctx, now, expireBatch)
		if err != nil {
			return expired, fmt.Errorf("list due offers: %w", err)
		}
		progressed := 0
		for _, o := range due {
			if _, err := m.Expire(ctx, o.ID, now); err != nil {
				if !errors.Is(err, ErrConflict) {
					m.log.Error("expire offer failed",
						zap.String("offer_id", string(o.ID)),
						zap.String("booking_id", string(o.BookingID)),
						zap.Error(err))
				}
				continue
			}
			progressed++
		}
		expired += progressed
		if len(due) < expireBatch || progressed == 0 {
			return expired, nil
		}
	}
}

// RunExpiryTicker runs ExpireDue on every tick until ctx is cancelled.
func (m *Manager) RunExpiryTicker(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.ExpireDue(ctx, m.now())
			if err != nil {
				m.log.Error("expiry tick failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.log.Info("expired offers", zap.Int("count", n))
			}
		}
	}
}

// Watch reports the remaining seconds once per second until the offer leaves pending.
// When the countdown reaches zero on a still pending offer it is declined on the driver's behalf.
func (m *Manager) Watch(ctx context.Context, offerID types.ID, tick func(remaining int)) (Status, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		o, err := m.store.Get(ctx, offerID)
		if err != nil {
			return "", err
		}
		if o.Status != StatusPending {
			return o.Status, nil
		}
		remaining := Countdown(*o, m.now())
		tick(remaining)
		if remaining == 0 {
			res, err := m.release(ctx, o.ID, o.DriverID, StatusDeclined, m.now())
			if errors.Is(err, ErrConflict) {
				latest, getErr := m.store.Get(ctx, offerID)
				if getErr != nil {
					return "", getErr
				}
				return latest.Status, nil
			}
			if err != nil {
				return "", err
			}
			return res.Status, nil
		}
		select {
		case <-ctx.Done():
			return o.Status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) release(ctx context.Context, offerID, driverID types.ID, to Status, now time.Time) (*Offer, error) {
	var released *booking.Booking
	o, err := m.store.Resolve(ctx, offerID, func(o *Offer, b *booking.Booking) error {
		released = nil
		if o.Status != StatusPending {
			return ErrConflict
		}
		if driverID != "" && o.DriverID != driverID {
			return ErrConflict
		}
		if to == StatusExpired && !o.Expired(now) {
			return ErrConflict
		}
		o.Status = to
		if to == StatusDeclined {
			o.RespondedAt = &now
		}
		if b.Status == booking.StatusDriverAssigned && b.DriverID == o.DriverID && b.CurrentOfferID == o.ID {
			b.ReleaseDriver(now)
			released = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.OffersResolvedTotal.WithLabelValues(string(to)).Inc()
	typ := events.TypeOfferDeclined
	if to == StatusExpired {
		typ = events.TypeOfferExpired
	}
	m.publish(ctx, typ, o, now)
	if released != nil && m.audit != nil {
		e := &booking.Event{
			BookingID:  o.BookingID,
			FromStatus: booking.StatusDriverAssigned,
			ToStatus:   booking.StatusPendingAssignment,
			ActorType:  booking.ActorSystem,
			CreatedAt:  now,
		}
		if to == StatusDeclined {
			driver := o.DriverID
			e.ActorType, e.ActorID = booking.ActorDriver, &driver
		}
		m.audit.Record(ctx, e)
	}
	m.log.Info("offer released",
		zap.String("offer_id", string(o.ID)),
		zap.String("booking_id", string(o.BookingID)),
		zap.String("driver_id", string(o.DriverID)),
		zap.String("status", string(to)),
		zap.Bool("booking_requeued", released != nil))
	return o, nil
}

func (m *Manager) currentOffer(ctx context.Context, bookingID types.ID) (types.ID, error) {
	b, err := m.bookings.Get(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.CurrentOfferID == "" {
		return "", ErrConflict
	}
	return b.CurrentOfferID, nil
}

func (m *Manager) publish(ctx context.Context, typ string, o *Offer, at time.Time) {
	err := m.publisher.Publish(ctx, events.DomainEvent{
		Type:      typ,
		BookingID: string(o.BookingID),
		DriverID:  string(o.DriverID),
		OfferID:   string(o.ID),
		Status:    string(o.Status),
		At:        at,
	})
	if err != nil {
		m.log.Warn("publish offer event failed", zap.String("offer_id", string(o.ID)), zap.Error(err))
	}
}

func (m *Manager) at(t time.Time) time.Time {
	if t.IsZero() {
		return m.now()
	}
	return t
}
