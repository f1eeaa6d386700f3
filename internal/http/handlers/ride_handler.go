// README: Driver ride handlers; offer accept/decline and trip progress.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/http/middleware"
	"cabdispatch/internal/modules/booking"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/types"
)

type RideHandler struct {
	bookings *booking.Service
	offers   *offer.Manager
}

func NewRideHandler(bookings *booking.Service, offers *offer.Manager) *RideHandler {
	return &RideHandler{bookings: bookings, offers: offers}
}

func (h *RideHandler) Accept(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := h.offers.Accept(ctx, offer.AcceptCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	b, err := h.bookings.Get(ctx, o.BookingID)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newBookingView(b))
}

func (h *RideHandler) Decline(c *gin.Context) {
	o, err := h.offers.Decline(c.Request.Context(), offer.DeclineCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"offer_id": o.ID, "status": o.Status})
}

func (h *RideHandler) Arrive(c *gin.Context) { h.progress(c, h.bookings.Arrive) }

func (h *RideHandler) Start(c *gin.Context) { h.progress(c, h.bookings.Start) }

func (h *RideHandler) StartWaitAndReturn(c *gin.Context) {
	h.progress(c, h.bookings.StartWaitAndReturn)
}

func (h *RideHandler) Complete(c *gin.Context) { h.progress(c, h.bookings.Complete) }

func (h *RideHandler) progress(c *gin.Context, step func(context.Context, booking.DriverCommand) (*booking.Booking, error)) {
	b, err := step(c.Request.Context(), booking.DriverCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newBookingView(b))
}
