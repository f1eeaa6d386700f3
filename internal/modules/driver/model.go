// README: Driver profile, availability and live position.
package driver

import (
	"time"

	"cabdispatch/internal/types"
)

// Status is the administrative approval state of a driver profile.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// Availability is the driver's self-declared online toggle.
type Availability string

const (
	AvailabilityOnline  Availability = "online"
	AvailabilityOffline Availability = "offline"
)

type Driver struct {
	ID              types.ID
	Name            string
	OperatorCode    string
	VehicleCategory string
	VehicleDetails  string
	Phone           string
	Status          Status
	Availability    Availability
	// Location is nil while the driver is offline or has not reported a fix yet.
	Location  *types.Point
	Paused    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dispatchable reports whether the automatic matcher may consider d at all.
func (d Driver) Dispatchable() bool {
	return d.Status == StatusActive &&
		d.Availability == AvailabilityOnline &&
		!d.Paused &&
		d.Location != nil
}
