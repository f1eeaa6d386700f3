// README: Booking handlers for passenger create/get/cancel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/http/middleware"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type createBookingReq struct {
	PassengerName       string      `json:"passenger_name"`
	PassengerPhone      string      `json:"passenger_phone"`
	OperatorID          string      `json:"operator_id"`
	PreferredOperatorID string      `json:"preferred_operator_id"`
	Pickup              placeView   `json:"pickup"`
	Dropoff             placeView   `json:"dropoff"`
	Stops               []placeView `json:"stops"`
	FareEstimate        moneyView   `json:"fare_estimate"`
	PaymentMethod       string      `json:"payment_method"`
	IsPriority          bool        `json:"is_priority"`
	IsAccountJob        bool        `json:"is_account_job"`
	AccountJobPIN       string      `json:"account_job_pin"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	stops := make([]types.Place, 0, len(req.Stops))
	for _, s := range req.Stops {
		stops = append(stops, s.place())
	}
	b, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		PassengerID:           types.ID(middleware.CallerUID(c)),
		PassengerName:         req.PassengerName,
		PassengerPhone:        req.PassengerPhone,
		OriginatingOperatorID: req.OperatorID,
		PreferredOperatorID:   req.PreferredOperatorID,
		Pickup:                req.Pickup.place(),
		Dropoff:               req.Dropoff.place(),
		Stops:                 stops,
		FareEstimate:          types.Money{Amount: req.FareEstimate.Amount, Currency: req.FareEstimate.Currency},
		PaymentMethod:         req.PaymentMethod,
		IsPriority:            req.IsPriority,
		IsAccountJob:          req.IsAccountJob,
		AccountJobPIN:         req.AccountJobPIN,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, newBookingView(b))
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if !canView(c, b) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(c, http.StatusOK, newBookingView(b))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelReq
	// the body is optional
	_ = c.ShouldBindJSON(&req)

	actor := booking.ActorPassenger
	switch middleware.CallerRole(c) {
	case middleware.RoleOperator:
		actor = booking.ActorOperator
	case middleware.RoleAdmin:
		actor = booking.ActorAdmin
	}
	b, err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: types.ID(c.Param("id")),
		ActorType: actor,
		ActorID:   types.ID(middleware.CallerUID(c)),
		Reason:    req.Reason,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newBookingView(b))
}

// canView allows the passenger, the assigned driver and operator staff.
func canView(c *gin.Context, b *booking.Booking) bool {
	uid := types.ID(middleware.CallerUID(c))
	switch middleware.CallerRole(c) {
	case middleware.RoleOperator, middleware.RoleAdmin:
		return true
	case middleware.RoleDriver:
		return b.DriverID == uid
	default:
		return b.PassengerID == uid
	}
}
