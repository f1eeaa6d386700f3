// README: Booking service covers passenger creation, ride progress and cancellation.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cabdispatch/internal/events"
	"cabdispatch/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("booking not found")
	ErrConflict     = errors.New("booking state conflict")
	ErrBadRequest   = errors.New("bad request")
)

// DisplayIDs issues the human readable booking reference.
type DisplayIDs interface {
	NextBookingID(ctx context.Context, operatorID string) (string, error)
}

type Service struct {
	store     Store
	audit     EventLog
	ids       DisplayIDs
	publisher events.Publisher
	log       *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

func NewService(store Store, audit EventLog, ids DisplayIDs, timeout time.Duration, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		audit:     audit,
		ids:       ids,
		publisher: events.NopPublisher{},
		log:       log.With(zap.String("component", "booking")),
		timeout:   timeout,
		now:       time.Now,
	}
}

// WithPublisher sends cancellations to p as domain events.
func (s *Service) WithPublisher(p events.Publisher) *Service {
	s.publisher = p
	return s
}

type CreateCommand struct {
	PassengerID           types.ID
	PassengerName         string
	PassengerPhone        string
	OriginatingOperatorID string
	PreferredOperatorID   string
	Pickup                types.Place
	Dropoff               types.Place
	Stops                 []types.Place
	FareEstimate          types.Money
	PaymentMethod         string
	IsPriority            bool
	IsAccountJob          bool
	AccountJobPIN         string
}

// DriverCommand is a ride-progress action by the assigned driver.
type DriverCommand struct {
	BookingID types.ID
	DriverID  types.ID
}

type CancelCommand struct {
	BookingID types.ID
	ActorType string
	ActorID   types.ID
	Reason    string
}

const (
	ActorPassenger = "passenger"
	ActorDriver    = "driver"
	ActorOperator  = "operator"
	ActorSystem    = "system"
	ActorAdmin     = "admin"
)

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	if cmd.PassengerID == "" || !cmd.Pickup.Valid() || !cmd.Dropoff.Valid() {
		return nil, ErrBadRequest
	}
	if cmd.OriginatingOperatorID == "" && cmd.PreferredOperatorID == "" {
		return nil, ErrBadRequest
	}
	now := s.now()
	b := &Booking{
		ID:                    types.ID(uuid.NewString()),
		PassengerID:           cmd.PassengerID,
		PassengerName:         cmd.PassengerName,
		PassengerPhone:        cmd.PassengerPhone,
		OriginatingOperatorID: cmd.OriginatingOperatorID,
		PreferredOperatorID:   cmd.PreferredOperatorID,
		Pickup:                cmd.Pickup,
		Dropoff:               cmd.Dropoff,
		Stops:                 cmd.Stops,
		FareEstimate:          cmd.FareEstimate,
		PaymentMethod:         cmd.PaymentMethod,
		IsPriority:            cmd.IsPriority,
		IsAccountJob:          cmd.IsAccountJob,
		AccountJobPIN:         cmd.AccountJobPIN,
		Status:                StatusPendingAssignment,
		CreatedAt:             now,
		UpdatedAt:             now,
		TimeoutAt:             now.Add(s.timeout),
	}
	if s.ids != nil {
		display, err := s.ids.NextBookingID(ctx, b.OperatorID())
		if err != nil {
			return nil, err
		}
		b.DisplayID = display
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, err
	}
	s.record(ctx, b.ID, StatusNone, StatusPendingAssignment, ActorPassenger, &cmd.PassengerID, now)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Arrive(ctx context.Context, cmd DriverCommand) (*Booking, error) {
	return s.progress(ctx, cmd, StatusArrivedAtPickup)
}

func (s *Service) Start(ctx context.Context, cmd DriverCommand) (*Booking, error) {
	return s.progress(ctx, cmd, StatusInProgress)
}

// StartWaitAndReturn marks a trip where the driver waits at the destination and brings the passenger back.
func (s *Service) StartWaitAndReturn(ctx context.Context, cmd DriverCommand) (*Booking, error) {
	return s.progress(ctx, cmd, StatusInProgressWaitAndReturn)
}

func (s *Service) Complete(ctx context.Context, cmd DriverCommand) (*Booking, error) {
	return s.progress(ctx, cmd, StatusCompleted)
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	to := StatusCancelledByPassenger
	reason := ReasonPassengerCancel
	switch cmd.ActorType {
	case ActorPassenger:
		if cmd.ActorID != "" && cmd.ActorID != b.PassengerID {
			return nil, ErrConflict
		}
	case ActorOperator:
		if cmd.ActorID == "" || string(cmd.ActorID) != b.OperatorID() {
			return nil, ErrConflict
		}
		to = StatusCancelledByOperator
		reason = ReasonOperatorCancelled
	case ActorAdmin:
		to = StatusCancelledByOperator
		reason = ReasonOperatorCancelled
	default:
		return nil, ErrBadRequest
	}
	if cmd.Reason != "" {
		reason = cmd.Reason
	}
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidState
	}
	now := s.now()
	updated, err := s.store.Transition(ctx, Transition{
		BookingID: b.ID,
		From:      b.Status,
		To:        to,
		Reason:    reason,
		At:        now,
	})
	if err != nil {
		return nil, err
	}
	actor := cmd.ActorID
	s.record(ctx, b.ID, b.Status, to, cmd.ActorType, &actor, now)
	if err := s.publisher.Publish(ctx, events.DomainEvent{
		Type:      events.TypeBookingCancelled,
		BookingID: string(b.ID),
		DriverID:  string(b.DriverID),
		Status:    string(to),
		At:        now,
	}); err != nil {
		s.log.Warn("publish cancellation failed", zap.String("booking_id", string(b.ID)), zap.Error(err))
	}
	return updated, nil
}

func (s *Service) progress(ctx context.Context, cmd DriverCommand, to Status) (*Booking, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	b, err := s.store.Get(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if b.DriverID != cmd.DriverID {
		return nil, ErrConflict
	}
	if !CanTransition(b.Status, to) {
		return nil, ErrInvalidState
	}
	now := s.now()
	updated, err := s.store.Transition(ctx, Transition{
		BookingID: b.ID,
		From:      b.Status,
		To:        to,
		DriverID:  cmd.DriverID,
		At:        now,
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, b.ID, b.Status, to, ActorDriver, &cmd.DriverID, now)
	return updated, nil
}

// Record appends an audit event for a transition made outside this service.
func (s *Service) Record(ctx context.Context, e *Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, e); err != nil {
		s.log.Warn("append booking event failed",
			zap.String("booking_id", string(e.BookingID)),
			zap.String("to", string(e.ToStatus)),
			zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, id types.ID, from, to Status, actorType string, actorID *types.ID, at time.Time) {
	s.Record(ctx, &Event{
		BookingID:  id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  at,
	})
}
