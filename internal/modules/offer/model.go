// README: Ride offer sent to one driver for one booking, with a fixed expiry.
package offer

import (
	"math"
	"time"

	"cabdispatch/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusExpired  Status = "expired"
)

// Details is the booking snapshot the driver sees while deciding.
type Details struct {
	BookingDisplayID       string
	Pickup                 types.Place
	Dropoff                types.Place
	Stops                  []types.Place
	FareEstimate           types.Money
	PaymentMethod          string
	PassengerName          string
	PassengerPhone         string
	IsPriority             bool
	IsAccountJob           bool
	AccountJobPIN          string
	DistanceToPickupMeters float64
	PickupEtaMinutes       int
}

type Offer struct {
	ID          types.ID
	BookingID   types.ID
	DriverID    types.ID
	Details     Details
	Status      Status
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RespondedAt *time.Time
}

// Expired reports whether the offer window has closed at now.
func (o Offer) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Countdown is the number of whole seconds the driver still has, rounded up and never negative.
// Only pending offers count down.
func Countdown(o Offer, now time.Time) int {
	if o.Status != StatusPending {
		return 0
	}
	remaining := o.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}
