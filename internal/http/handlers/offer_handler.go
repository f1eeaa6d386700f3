// README: Offer handlers; offer snapshot and the live countdown stream.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cabdispatch/internal/http/middleware"
	"cabdispatch/internal/modules/offer"
	"cabdispatch/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type OfferHandler struct {
	offers *offer.Manager
	log    *zap.Logger
}

func NewOfferHandler(offers *offer.Manager, log *zap.Logger) *OfferHandler {
	return &OfferHandler{offers: offers, log: log.With(zap.String("component", "offer_ws"))}
}

// countdownFrame is pushed once per second while the offer is pending and once more with the final status.
type countdownFrame struct {
	OfferID          string `json:"offer_id"`
	Status           string `json:"status"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

func (h *OfferHandler) Get(c *gin.Context) {
	o, ok := h.owned(c)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, newOfferView(o, time.Now()))
}

// Countdown upgrades to a websocket and streams the remaining seconds. A pending offer that
// reaches zero while watched is declined for the driver.
func (h *OfferHandler) Countdown(c *gin.Context) {
	o, ok := h.owned(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("offer_id", string(o.ID)), zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		// reads only detect the client going away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	status, err := h.offers.Watch(ctx, o.ID, func(remaining int) {
		if err := conn.WriteJSON(countdownFrame{OfferID: string(o.ID), Status: string(offer.StatusPending), RemainingSeconds: remaining}); err != nil {
			cancel()
		}
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.log.Error("watch offer failed", zap.String("offer_id", string(o.ID)), zap.Error(err))
		}
		return
	}
	_ = conn.WriteJSON(countdownFrame{OfferID: string(o.ID), Status: string(status)})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status)),
		time.Now().Add(time.Second))
}

func (h *OfferHandler) owned(c *gin.Context) (*offer.Offer, bool) {
	o, err := h.offers.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return nil, false
	}
	if o.DriverID != types.ID(middleware.CallerUID(c)) {
		writeError(c, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return o, true
}
