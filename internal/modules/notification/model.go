// README: Notification records shown to passengers and drivers.
package notification

import (
	"time"

	"github.com/google/uuid"

	"cabdispatch/internal/types"
)

type Type string

const TypeBookingTimeout Type = "booking_timeout"

type Notification struct {
	ID               types.ID
	UserID           types.ID
	Type             Type
	Title            string
	Body             string
	RelatedBookingID types.ID
	CreatedAt        time.Time
	Read             bool
}

func New(userID types.ID, typ Type, title, body string, bookingID types.ID, now time.Time) Notification {
	return Notification{
		ID:               types.ID(uuid.NewString()),
		UserID:           userID,
		Type:             typ,
		Title:            title,
		Body:             body,
		RelatedBookingID: bookingID,
		CreatedAt:        now,
	}
}

// BookingTimedOut builds the passenger message for a booking nobody picked up in time.
func BookingTimedOut(passengerID, bookingID types.ID, displayID string, now time.Time) Notification {
	ref := displayID
	if ref == "" {
		ref = string(bookingID)
	}
	return New(passengerID, TypeBookingTimeout,
		"No driver available",
		"Sorry, we couldn't find a driver for booking "+ref+". Please try booking again.",
		bookingID, now)
}
