// README: Conditional mutations shared by every booking store implementation.
package booking

import (
	"time"

	"cabdispatch/internal/modules/notification"
	"cabdispatch/internal/types"
)

// Transition moves a booking from one status to another. The store applies it only
// while the booking is still in From (and still assigned to DriverID when set).
type Transition struct {
	BookingID types.ID
	From      Status
	To        Status
	DriverID  types.ID
	Reason    string
	At        time.Time
}

// Apply checks the preconditions against b and mutates it in place.
func (t Transition) Apply(b *Booking) error {
	if b.Status != t.From {
		return ErrConflict
	}
	if t.DriverID != "" && b.DriverID != t.DriverID {
		return ErrConflict
	}
	if !CanTransition(t.From, t.To) {
		return ErrInvalidState
	}
	at := t.At
	b.Status = t.To
	b.UpdatedAt = at
	switch t.To {
	case StatusArrivedAtPickup:
		b.ArrivedAt = &at
		b.DriverEtaMinutes = nil
	case StatusInProgress, StatusInProgressWaitAndReturn:
		if b.StartedAt == nil {
			b.StartedAt = &at
		}
	case StatusCompleted:
		b.CompletedAt = &at
	case StatusCancelledNoDriver, StatusCancelledByPassenger, StatusCancelledByOperator:
		b.CancelledAt = &at
		b.CancellationReason = t.Reason
	}
	return nil
}

// PositionUpdate mirrors a driver's position onto one of their active bookings.
type PositionUpdate struct {
	BookingID types.ID
	DriverID  types.ID
	// Expected is the status observed when the booking was read; the write is dropped if it changed.
	Expected   Status
	Position   types.Point
	EtaMinutes *int
	At         time.Time
}

func (u PositionUpdate) Apply(b *Booking) error {
	if b.Status != u.Expected || b.DriverID != u.DriverID {
		return ErrConflict
	}
	pos := u.Position
	b.DriverCurrentLocation = &pos
	if u.EtaMinutes != nil {
		eta := *u.EtaMinutes
		b.DriverEtaMinutes = &eta
	}
	b.UpdatedAt = u.At
	return nil
}

// Reclaim cancels one timed-out booking and optionally records a passenger notification with it.
type Reclaim struct {
	BookingID    types.ID
	Notification *notification.Notification
}

// TimeOut cancels b when it is still waiting for a driver past its timeout; it reports whether b changed.
func TimeOut(b *Booking, now time.Time) bool {
	if b.Status != StatusPendingAssignment || !b.TimeoutAt.Before(now) {
		return false
	}
	b.Status = StatusCancelledNoDriver
	b.CancelledAt = &now
	b.CancellationReason = ReasonTimeoutNoDriver
	b.UpdatedAt = now
	return true
}
