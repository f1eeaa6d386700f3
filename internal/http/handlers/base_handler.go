// README: Base handler utilities (JSON helpers, error mapping, response views).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/modules/operator"
	"cabdispatch/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrBadRequest), errors.Is(err, driver.ErrBadRequest),
		errors.Is(err, offer.ErrBadRequest), errors.Is(err, operator.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, driver.ErrNotFound),
		errors.Is(err, offer.ErrNotFound), errors.Is(err, operator.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, offer.ErrOfferExpired):
		writeError(c, http.StatusGone, err.Error())
	case errors.Is(err, booking.ErrConflict), errors.Is(err, booking.ErrInvalidState),
		errors.Is(err, offer.ErrConflict), errors.Is(err, driver.ErrInvalidState):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

type pointView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// placeView omits lat/lng when the coordinate is unknown.
type placeView struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Address string   `json:"address"`
}

func (p placeView) place() types.Place {
	out := types.Place{Point: types.UnknownPoint(), Address: p.Address}
	if p.Lat != nil && p.Lng != nil {
		out.Point = types.Point{Lat: *p.Lat, Lng: *p.Lng}
	}
	return out
}

func newPlaceView(p types.Place) placeView {
	v := placeView{Address: p.Address}
	if p.Valid() {
		lat, lng := p.Lat, p.Lng
		v.Lat, v.Lng = &lat, &lng
	}
	return v
}

func newPlaceViews(ps []types.Place) []placeView {
	out := make([]placeView, 0, len(ps))
	for _, p := range ps {
		out = append(out, newPlaceView(p))
	}
	return out
}

// moneyView carries amounts in the currency's minor unit, as stored.
type moneyView struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type bookingView struct {
	ID                    string      `json:"id"`
	DisplayID             string      `json:"display_id"`
	PassengerID           string      `json:"passenger_id"`
	Status                string      `json:"status"`
	OperatorID            string      `json:"operator_id"`
	Pickup                placeView   `json:"pickup"`
	Dropoff               placeView   `json:"dropoff"`
	Stops                 []placeView `json:"stops,omitempty"`
	FareEstimate          moneyView   `json:"fare_estimate"`
	PaymentMethod         string      `json:"payment_method,omitempty"`
	IsPriority            bool        `json:"is_priority"`
	DriverID              string      `json:"driver_id,omitempty"`
	DriverName            string      `json:"driver_name,omitempty"`
	DriverVehicleDetails  string      `json:"driver_vehicle_details,omitempty"`
	DriverCurrentLocation *pointView  `json:"driver_current_location,omitempty"`
	DriverEtaMinutes      *int        `json:"driver_eta_minutes,omitempty"`
	DispatchMethod        string      `json:"dispatch_method,omitempty"`
	CurrentOfferID        string      `json:"current_offer_id,omitempty"`
	CancellationReason    string      `json:"cancellation_reason,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	TimeoutAt             time.Time   `json:"timeout_at"`
	AcceptedAt            *time.Time  `json:"accepted_at,omitempty"`
	ArrivedAt             *time.Time  `json:"arrived_at,omitempty"`
	StartedAt             *time.Time  `json:"started_at,omitempty"`
	CompletedAt           *time.Time  `json:"completed_at,omitempty"`
	CancelledAt           *time.Time  `json:"cancelled_at,omitempty"`
}

func newBookingView(b *booking.Booking) bookingView {
	v := bookingView{
		ID:                   string(b.ID),
		DisplayID:            b.DisplayID,
		PassengerID:          string(b.PassengerID),
		Status:               string(b.Status),
		OperatorID:           b.OperatorID(),
		Pickup:               newPlaceView(b.Pickup),
		Dropoff:              newPlaceView(b.Dropoff),
		FareEstimate:         moneyView{Amount: b.FareEstimate.Amount, Currency: b.FareEstimate.Currency},
		PaymentMethod:        b.PaymentMethod,
		IsPriority:           b.IsPriority,
		DriverID:             string(b.DriverID),
		DriverName:           b.DriverName,
		DriverVehicleDetails: b.DriverVehicleDetails,
		DriverEtaMinutes:     b.DriverEtaMinutes,
		DispatchMethod:       string(b.DispatchMethod),
		CurrentOfferID:       string(b.CurrentOfferID),
		CancellationReason:   b.CancellationReason,
		CreatedAt:            b.CreatedAt,
		TimeoutAt:            b.TimeoutAt,
		AcceptedAt:           b.AcceptedAt,
		ArrivedAt:            b.ArrivedAt,
		StartedAt:            b.StartedAt,
		CompletedAt:          b.CompletedAt,
		CancelledAt:          b.CancelledAt,
	}
	if len(b.Stops) > 0 {
		v.Stops = newPlaceViews(b.Stops)
	}
	if b.DriverCurrentLocation != nil {
		v.DriverCurrentLocation = &pointView{Lat: b.DriverCurrentLocation.Lat, Lng: b.DriverCurrentLocation.Lng}
	}
	return v
}

type offerView struct {
	ID               string      `json:"id"`
	BookingID        string      `json:"booking_id"`
	DriverID         string      `json:"driver_id"`
	Status           string      `json:"status"`
	ExpiresAt        time.Time   `json:"expires_at"`
	RemainingSeconds int         `json:"remaining_seconds"`
	BookingDisplayID string      `json:"booking_display_id"`
	Pickup           placeView   `json:"pickup"`
	Dropoff          placeView   `json:"dropoff"`
	Stops            []placeView `json:"stops,omitempty"`
	FareEstimate     moneyView   `json:"fare_estimate"`
	PaymentMethod    string      `json:"payment_method,omitempty"`
	PassengerName    string      `json:"passenger_name,omitempty"`
	PassengerPhone   string      `json:"passenger_phone,omitempty"`
	IsPriority       bool        `json:"is_priority"`
	IsAccountJob     bool        `json:"is_account_job"`
	AccountJobPIN    string      `json:"account_job_pin,omitempty"`
	DistanceMeters   float64     `json:"distance_to_pickup_meters"`
	PickupEta        int         `json:"pickup_eta_minutes"`
}

func newOfferView(o *offer.Offer, now time.Time) offerView {
	d := o.Details
	v := offerView{
		ID:               string(o.ID),
		BookingID:        string(o.BookingID),
		DriverID:         string(o.DriverID),
		Status:           string(o.Status),
		ExpiresAt:        o.ExpiresAt,
		RemainingSeconds: offer.Countdown(*o, now),
		BookingDisplayID: d.BookingDisplayID,
		Pickup:           newPlaceView(d.Pickup),
		Dropoff:          newPlaceView(d.Dropoff),
		FareEstimate:     moneyView{Amount: d.FareEstimate.Amount, Currency: d.FareEstimate.Currency},
		PaymentMethod:    d.PaymentMethod,
		PassengerName:    d.PassengerName,
		PassengerPhone:   d.PassengerPhone,
		IsPriority:       d.IsPriority,
		IsAccountJob:     d.IsAccountJob,
		AccountJobPIN:    d.AccountJobPIN,
		DistanceMeters:   d.DistanceToPickupMeters,
		PickupEta:        d.PickupEtaMinutes,
	}
	if len(d.Stops) > 0 {
		v.Stops = newPlaceViews(d.Stops)
	}
	return v
}
