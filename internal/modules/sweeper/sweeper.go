// README: Timeout sweeper; cancels bookings nobody accepted in time and tells the passenger.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cabdispatch/internal/config"
	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/notification"
	"cabdispatch/internal/observability"
)

// ChunkSize bounds how many bookings one reclaim transaction touches.
const ChunkSize = 200

const lockKey = "dispatch:sweeper:lock"

type Store interface {
	ListTimedOut(ctx context.Context, now time.Time, limit int) ([]booking.Booking, error)
	Reclaim(ctx context.Context, reclaims []booking.Reclaim, now time.Time) ([]booking.Reclaim, error)
}

// Locker guards the scheduled sweep so only one replica runs it per interval.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type Result struct {
	Found         int
	Processed     int
	Notifications int
}

type Sweeper struct {
	store     Store
	sink      notification.Sink
	publisher events.Publisher
	audit     Recorder
	locker    Locker
	cfg       config.DispatchConfig
	log       *zap.Logger
	now       func() time.Time
}

// Recorder receives booking audit events for reclaimed bookings.
type Recorder interface {
	Record(ctx context.Context, e *booking.Event)
}

func New(store Store, sink notification.Sink, publisher events.Publisher, audit Recorder, locker Locker, cfg config.DispatchConfig, log *zap.Logger) *Sweeper {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Sweeper{
		store:     store,
		sink:      sink,
		publisher: publisher,
		audit:     audit,
		locker:    locker,
		cfg:       cfg,
		log:       log.With(zap.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Sweep cancels every pending booking whose timeoutAt is before now. Each chunk is
// committed in one conditional write, so bookings that were assigned meanwhile are
// left alone and running Sweep twice is harmless.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	threshold := now.Add(-s.cfg.SweepThreshold)

	for {
		due, err := s.store.ListTimedOut(ctx, now, ChunkSize)
		if err != nil {
			s.log.Error("list timed-out bookings failed", zap.String("stage", "query"), zap.Error(err))
			return res, fmt.Errorf("list timed-out bookings: %w", err)
		}
		res.Found += len(due)
		if len(due) == 0 {
			break
		}

		reclaims := make([]booking.Reclaim, 0, len(due))
		for _, b := range due {
			r := booking.Reclaim{BookingID: b.ID}
			if b.PassengerID != "" {
				n := notification.BookingTimedOut(b.PassengerID, b.ID, b.DisplayID, now)
				r.Notification = &n
			}
			reclaims = append(reclaims, r)
		}

		applied, err := s.store.Reclaim(ctx, reclaims, now)
		if err != nil {
			s.log.Error("reclaim chunk failed", zap.String("stage", "commit"), zap.Int("chunk", len(reclaims)), zap.Error(err))
			return res, fmt.Errorf("reclaim bookings: %w", err)
		}
		res.Processed += len(applied)
		observability.BookingsTimedOutTotal.Add(float64(len(applied)))

		for _, r := range applied {
			s.afterReclaim(ctx, r, now)
			if r.Notification != nil {
				res.Notifications++
			}
		}
		if len(due) < ChunkSize || len(applied) == 0 {
			break
		}
	}

	s.log.Info(fmt.Sprintf("found %d timed-out bookings", res.Found),
		zap.Time("threshold", threshold),
		zap.Int("processed", res.Processed),
		zap.Int("notifications", res.Notifications))
	return res, nil
}

func (s *Sweeper) afterReclaim(ctx context.Context, r booking.Reclaim, now time.Time) {
	if r.Notification != nil && s.sink != nil {
		// delivery is best effort; the notification document is already stored
		if err := s.sink.Notify(ctx, *r.Notification); err != nil {
			s.log.Warn("deliver timeout notification failed",
				zap.String("booking_id", string(r.BookingID)),
				zap.String("user_id", string(r.Notification.UserID)),
				zap.Error(err))
		}
	}
	if s.audit != nil {
		s.audit.Record(ctx, &booking.Event{
			BookingID:  r.BookingID,
			FromStatus: booking.StatusPendingAssignment,
			ToStatus:   booking.StatusCancelledNoDriver,
			ActorType:  booking.ActorSystem,
			CreatedAt:  now,
		})
	}
	if err := s.publisher.Publish(ctx, events.DomainEvent{
		Type:      events.TypeBookingTimedOut,
		BookingID: string(r.BookingID),
		Status:    string(booking.StatusCancelledNoDriver),
		At:        now,
	}); err != nil {
		s.log.Warn("publish timeout failed", zap.String("booking_id", string(r.BookingID)), zap.Error(err))
	}
}

// RunScheduler sweeps on every interval until ctx is cancelled.
func (s *Sweeper) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.SweepLockTTL)
		if err != nil {
			observability.SweepRunsTotal.WithLabelValues("lock_error").Inc()
			s.log.Error("sweep lock failed", zap.Error(err))
			return
		}
		if !ok {
			observability.SweepRunsTotal.WithLabelValues("skipped").Inc()
			return
		}
		// the lock is left to expire so a fast replica cannot sweep again in the same interval
	}
	if _, err := s.Sweep(ctx, s.now()); err != nil {
		observability.SweepRunsTotal.WithLabelValues("error").Inc()
		return
	}
	observability.SweepRunsTotal.WithLabelValues("ok").Inc()
}
