// README: Location propagator; mirrors a driver's position onto their active bookings.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cabdispatch/internal/config"
	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/geo"
	"cabdispatch/internal/observability"
	"cabdispatch/internal/types"
)

type BookingPositions interface {
	ListActiveByDriver(ctx context.Context, driverID types.ID) ([]booking.Booking, error)
	UpdateDriverPosition(ctx context.Context, u booking.PositionUpdate) error
}

type Propagator struct {
	bookings BookingPositions
	speedKmh float64
	limit    int
	log      *zap.Logger
	now      func() time.Time
}

func NewPropagator(bookings BookingPositions, cfg config.DispatchConfig, log *zap.Logger) *Propagator {
	limit := cfg.FanOutLimit
	if limit <= 0 {
		limit = 1
	}
	return &Propagator{
		bookings: bookings,
		speedKmh: cfg.AssumedSpeedKmh,
		limit:    limit,
		log:      log.With(zap.String("component", "location")),
		now:      time.Now,
	}
}

// HandleDriverUpdated writes the new position to every active booking of the driver.
// Nothing is written when the position is missing or did not change.
func (p *Propagator) HandleDriverUpdated(ctx context.Context, ch DriverChange) (Result, error) {
	var res Result
	if ch.After == nil || types.SamePosition(ch.Before, ch.After) {
		return res, nil
	}
	log := p.log.With(zap.String("driver_id", string(ch.DriverID)))

	active, err := p.bookings.ListActiveByDriver(ctx, ch.DriverID)
	if err != nil {
		log.Error("list active bookings failed", zap.String("stage", "list_bookings"), zap.Error(err))
		return res, fmt.Errorf("list active bookings: %w", err)
	}
	res.Matched = len(active)
	if len(active) == 0 {
		return res, nil
	}

	now := p.now()
	pos := *ch.After
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for _, b := range active {
		b := b
		g.Go(func() error {
			u := booking.PositionUpdate{
				BookingID: b.ID,
				DriverID:  ch.DriverID,
				Expected:  b.Status,
				Position:  pos,
				At:        now,
			}
			if b.Status == booking.StatusDriverAssigned {
				eta := geo.EtaMinutes(geo.DistanceMeters(pos, b.Pickup.Point), p.speedKmh)
				u.EtaMinutes = &eta
			}
			err := p.bookings.UpdateDriverPosition(gctx, u)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Updated++
				observability.LocationWritesTotal.WithLabelValues("updated").Inc()
			case errors.Is(err, booking.ErrConflict), errors.Is(err, booking.ErrNotFound):
				res.Skipped++
				observability.LocationWritesTotal.WithLabelValues("skipped").Inc()
			default:
				res.Failed++
				observability.LocationWritesTotal.WithLabelValues("failed").Inc()
				log.Warn("booking position write failed",
					zap.String("booking_id", string(b.ID)),
					zap.String("stage", "write_position"),
					zap.Error(err))
			}
			// per-booking failures never cancel the siblings
			return nil
		})
	}
	_ = g.Wait()

	log.Debug("driver position propagated",
		zap.Int("matched", res.Matched),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

// HandleEvent adapts HandleDriverUpdated to the event bus.
func (p *Propagator) HandleEvent(ctx context.Context, e events.Event) error {
	_, err := p.HandleDriverUpdated(ctx, DriverChange{DriverID: e.DriverID, Before: e.Before, After: e.After})
	return err
}
