// README: Booking aggregate, status set and state flow.
package booking

import (
	"time"

	"cabdispatch/internal/types"
)

type Status string

const (
	StatusNone                    Status = "none"
	StatusPendingAssignment       Status = "pending_assignment"
	StatusDriverAssigned          Status = "driver_assigned"
	StatusArrivedAtPickup         Status = "arrived_at_pickup"
	StatusInProgress              Status = "in_progress"
	StatusInProgressWaitAndReturn Status = "in_progress_wait_and_return"
	StatusCompleted               Status = "completed"
	StatusCancelledNoDriver       Status = "cancelled_no_driver"
	StatusCancelledByPassenger    Status = "cancelled_by_passenger"
	StatusCancelledByOperator     Status = "cancelled_by_operator"
)

// ActiveStatuses are the states in which a driver is attached and moving towards or with the passenger.
var ActiveStatuses = []Status{
	StatusDriverAssigned,
	StatusArrivedAtPickup,
	StatusInProgress,
	StatusInProgressWaitAndReturn,
}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelledNoDriver, StatusCancelledByPassenger, StatusCancelledByOperator:
		return true
	}
	return false
}

type DispatchMethod string

const (
	DispatchAutoSystem     DispatchMethod = "auto_system"
	DispatchManualOperator DispatchMethod = "manual_operator"
)

const (
	ReasonTimeoutNoDriver   = "timeout_no_driver_available"
	ReasonPassengerCancel   = "passenger_cancelled"
	ReasonOperatorCancelled = "operator_cancelled"
)

type Booking struct {
	ID                    types.ID
	DisplayID             string
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
	Status                Status

	DriverID              types.ID
	DriverName            string
	DriverVehicleDetails  string
	DriverCurrentLocation *types.Point
	DriverEtaMinutes      *int
	DispatchMethod        DispatchMethod
	CurrentOfferID        types.ID
	DeclinedDriverIDs     []types.ID

	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	TimeoutAt          time.Time
	AcceptedAt         *time.Time
	ArrivedAt          *time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
}

// OperatorID resolves the operator responsible for dispatch: originating first, then preferred.
func (b Booking) OperatorID() string {
	if b.OriginatingOperatorID != "" {
		return b.OriginatingOperatorID
	}
	return b.PreferredOperatorID
}

func (b Booking) HasDeclined(driverID types.ID) bool {
	for _, id := range b.DeclinedDriverIDs {
		if id == driverID {
			return true
		}
	}
	return false
}

// ReleaseDriver returns an assigned booking to the pending pool and remembers the driver that let it go.
func (b *Booking) ReleaseDriver(at time.Time) {
	if b.DriverID != "" && !b.HasDeclined(b.DriverID) {
		b.DeclinedDriverIDs = append(b.DeclinedDriverIDs, b.DriverID)
	}
	b.Status = StatusPendingAssignment
	b.DriverID = ""
	b.DriverName = ""
	b.DriverVehicleDetails = ""
	b.DriverCurrentLocation = nil
	b.DriverEtaMinutes = nil
	b.DispatchMethod = ""
	b.CurrentOfferID = ""
	b.UpdatedAt = at
}

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPendingAssignment: {StatusDriverAssigned, StatusCancelledNoDriver, StatusCancelledByPassenger, StatusCancelledByOperator},
	// back to pending when the offered driver declines or lets the offer expire
	StatusDriverAssigned:          {StatusPendingAssignment, StatusArrivedAtPickup, StatusCancelledByPassenger, StatusCancelledByOperator},
	StatusArrivedAtPickup:         {StatusInProgress, StatusInProgressWaitAndReturn, StatusCancelledByPassenger, StatusCancelledByOperator},
	StatusInProgress:              {StatusCompleted, StatusInProgressWaitAndReturn},
	StatusInProgressWaitAndReturn: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
