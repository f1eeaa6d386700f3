// README: Assignment service; turns a pending booking into a driver assignment plus a timed offer.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cabdispatch/internal/config"
	"cabdispatch/internal/events"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/geo"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/observability"
	"cabdispatch/internal/types"
)

type Outcome string

const (
	OutcomeAssigned          Outcome = "assigned"
	OutcomeSkippedNotPending Outcome = "skipped_not_pending"
	OutcomeNoOperator        Outcome = "no_operator"
	OutcomePolicyBlocked     Outcome = "policy_blocked"
	OutcomeInvalidPickup     Outcome = "invalid_pickup"
	OutcomeNoDriver          Outcome = "no_driver"
	OutcomeConflict          Outcome = "conflict"
	OutcomeError             Outcome = "error"
)

type BookingReader interface {
	Get(ctx context.Context, id types.ID) (*booking.Booking, error)
}

type PolicyGate interface {
	MayAutoAssign(ctx context.Context, operatorID string) (operator.Decision, error)
}

type DriverDirectory interface {
	ListActive(ctx context.Context, operatorCode string) ([]driver.Driver, error)
}

// Assigner commits the booking update and the offer creation as one conditional write.
type Assigner interface {
	Assign(ctx context.Context, bookingID types.ID, build offer.BuildFunc) (*offer.Offer, error)
}

// RouteEstimator gives a road travel time; the straight-line estimate is used when it is absent or fails.
type RouteEstimator interface {
	DriveTime(ctx context.Context, from, to types.Point) (time.Duration, error)
}

type Deps struct {
	Bookings  BookingReader
	Policy    PolicyGate
	Drivers   DriverDirectory
	Assigner  Assigner
	Routes    RouteEstimator
	Audit     offer.Recorder
	Publisher events.Publisher
}

type Service struct {
	deps Deps
	cfg  config.DispatchConfig
	log  *zap.Logger
	now  func() time.Time
}

func NewService(deps Deps, cfg config.DispatchConfig, log *zap.Logger) *Service {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	return &Service{deps: deps, cfg: cfg, log: log.With(zap.String("component", "assignment")), now: time.Now}
}

// HandleBookingCreated attempts one automatic assignment. It is safe to call repeatedly for the
// same booking: anything other than a pending, unassigned booking is a no-op.
func (s *Service) HandleBookingCreated(ctx context.Context, bookingID types.ID) (Outcome, error) {
	start := time.Now()
	outcome, err := s.handle(ctx, bookingID)
	observability.AssignmentsTotal.WithLabelValues(string(outcome)).Inc()
	observability.AssignmentLatency.Observe(time.Since(start).Seconds())
	return outcome, err
}

// HandleEvent adapts HandleBookingCreated to the event bus.
func (s *Service) HandleEvent(ctx context.Context, e events.Event) error {
	_, err := s.HandleBookingCreated(ctx, e.BookingID)
	return err
}

func (s *Service) handle(ctx context.Context, bookingID types.ID) (Outcome, error) {
	log := s.log.With(zap.String("booking_id", string(bookingID)))

	b, err := s.deps.Bookings.Get(ctx, bookingID)
	if err != nil {
		log.Error("load booking failed", zap.String("stage", "load_booking"), zap.Error(err))
		return OutcomeError, fmt.Errorf("load booking: %w", err)
	}
	if b.Status != booking.StatusPendingAssignment || b.DriverID != "" {
		return OutcomeSkippedNotPending, nil
	}

	operatorID := b.OperatorID()
	if operatorID == "" {
		log.Info("no operator on booking")
		return OutcomeNoOperator, nil
	}
	log = log.With(zap.String("operator_id", operatorID))

	decision, err := s.deps.Policy.MayAutoAssign(ctx, operatorID)
	if err != nil {
		log.Error("dispatch policy failed", zap.String("stage", "policy"), zap.Error(err))
		return OutcomePolicyBlocked, err
	}
	if !decision.Allowed {
		log.Info("auto dispatch blocked", zap.String("reason", decision.Reason))
		return OutcomePolicyBlocked, nil
	}

	if !b.Pickup.Valid() {
		log.Warn("invalid pickup coordinates", zap.Float64("lat", b.Pickup.Lat), zap.Float64("lng", b.Pickup.Lng))
		return OutcomeInvalidPickup, nil
	}

	candidates, err := s.deps.Drivers.ListActive(ctx, operatorID)
	if err != nil {
		log.Error("list drivers failed", zap.String("stage", "list_drivers"), zap.Error(err))
		return OutcomeError, fmt.Errorf("list drivers: %w", err)
	}
	eligible := candidates[:0]
	for _, d := range candidates {
		if !d.Dispatchable() || b.HasDeclined(d.ID) {
			continue
		}
		eligible = append(eligible, d)
	}

	chosen, distance := geo.FindNearest(b.Pickup.Point, eligible)
	if chosen == nil {
		log.Info("no driver available", zap.Int("candidates", len(candidates)))
		return OutcomeNoDriver, nil
	}
	log = log.With(zap.String("driver_id", string(chosen.ID)))

	eta := s.pickupEta(ctx, *chosen.Location, b.Pickup.Point, distance)
	o, err := s.deps.Assigner.Assign(ctx, bookingID, s.build(*chosen, distance, eta))
	if errors.Is(err, booking.ErrConflict) {
		log.Info("booking changed before assignment")
		return OutcomeConflict, nil
	}
	if err != nil {
		log.Error("assign failed", zap.String("stage", "assign"), zap.Error(err))
		return OutcomeError, fmt.Errorf("assign: %w", err)
	}

	s.afterAssign(ctx, o)
	log.Info("driver assigned",
		zap.String("offer_id", string(o.ID)),
		zap.Float64("distance_m", distance),
		zap.Int("eta_min", eta))
	return OutcomeAssigned, nil
}

// build returns the conditional mutation run inside the assignment write.
func (s *Service) build(d driver.Driver, distance float64, eta int) offer.BuildFunc {
	return func(b *booking.Booking) (*offer.Offer, error) {
		if b.Status != booking.StatusPendingAssignment || b.DriverID != "" {
			return nil, booking.ErrConflict
		}
		now := s.now()
		o := &offer.Offer{
			ID:        types.ID(uuid.NewString()),
			BookingID: b.ID,
			DriverID:  d.ID,
			Details: offer.Details{
				BookingDisplayID:       b.DisplayID,
				Pickup:                 b.Pickup,
				Dropoff:                b.Dropoff,
				Stops:                  b.Stops,
				FareEstimate:           b.FareEstimate,
				PaymentMethod:          b.PaymentMethod,
				PassengerName:          b.PassengerName,
				PassengerPhone:         b.PassengerPhone,
				IsPriority:             b.IsPriority,
				IsAccountJob:           b.IsAccountJob,
				AccountJobPIN:          b.AccountJobPIN,
				DistanceToPickupMeters: distance,
				PickupEtaMinutes:       eta,
			},
			Status:    offer.StatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.OfferWindow),
		}
		b.Status = booking.StatusDriverAssigned
		b.DriverID = d.ID
		b.DriverName = d.Name
		b.DriverVehicleDetails = d.VehicleDetails
		b.DriverCurrentLocation = d.Location
		b.DriverEtaMinutes = &eta
		b.DispatchMethod = booking.DispatchAutoSystem
		b.CurrentOfferID = o.ID
		b.UpdatedAt = now
		return o, nil
	}
}

func (s *Service) pickupEta(ctx context.Context, from, to types.Point, distance float64) int {
	if s.deps.Routes != nil {
		d, err := s.deps.Routes.DriveTime(ctx, from, to)
		if err == nil {
			if m := int(d.Round(time.Minute) / time.Minute); m >= 1 {
				return m
			}
			return 1
		}
		s.log.Debug("route estimate unavailable, using straight line", zap.Error(err))
	}
	return geo.EtaMinutes(distance, s.cfg.AssumedSpeedKmh)
}

func (s *Service) afterAssign(ctx context.Context, o *offer.Offer) {
	if s.deps.Audit != nil {
		driverID := o.DriverID
		s.deps.Audit.Record(ctx, &booking.Event{
			BookingID:  o.BookingID,
			FromStatus: booking.StatusPendingAssignment,
			ToStatus:   booking.StatusDriverAssigned,
			ActorType:  booking.ActorSystem,
			ActorID:    &driverID,
			CreatedAt:  o.CreatedAt,
		})
	}
	err := s.deps.Publisher.Publish(ctx, events.DomainEvent{
		Type:      events.TypeDriverAssigned,
		BookingID: string(o.BookingID),
		DriverID:  string(o.DriverID),
		OfferID:   string(o.ID),
		Status:    string(booking.StatusDriverAssigned),
		At:        o.CreatedAt,
	})
	if err != nil {
		s.log.Warn("publish assignment failed", zap.String("booking_id", string(o.BookingID)), zap.Error(err))
	}
}
