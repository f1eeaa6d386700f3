// README: Operator handlers for onboarding and dispatch settings.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/http/middleware"
	"cabdispatch/internal/modules/operator"
)

type OperatorHandler struct {
	operators *operator.Service
}

func NewOperatorHandler(svc *operator.Service) *OperatorHandler {
	return &OperatorHandler{operators: svc}
}

type settingsView struct {
	OperatorID                   string    `json:"operator_id"`
	DispatchMode                 string    `json:"dispatch_mode"`
	AutoDispatchEnabled          bool      `json:"auto_dispatch_enabled"`
	MaxAutoAcceptWaitTimeMinutes int       `json:"max_auto_accept_wait_time_minutes"`
	EnableSurgePricing           bool      `json:"enable_surge_pricing"`
	OperatorSurgePercentage      float64   `json:"operator_surge_percentage"`
	UpdatedAt                    time.Time `json:"updated_at"`
}

func newSettingsView(s *operator.Settings) settingsView {
	return settingsView{
		OperatorID:                   s.OperatorID,
		DispatchMode:                 string(s.DispatchMode),
		AutoDispatchEnabled:          s.AutoDispatchEnabled,
		MaxAutoAcceptWaitTimeMinutes: s.MaxAutoAcceptWaitTimeMinutes,
		EnableSurgePricing:           s.EnableSurgePricing,
		OperatorSurgePercentage:      s.OperatorSurgePercentage,
		UpdatedAt:                    s.UpdatedAt,
	}
}

type onboardReq struct {
	Name string `json:"name"`
}

func (h *OperatorHandler) Onboard(c *gin.Context) {
	var req onboardReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.operators.Onboard(c.Request.Context(), req.Name)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"id": o.ID, "name": o.Name})
}

func (h *OperatorHandler) GetSettings(c *gin.Context) {
	if !sameOperator(c) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	s, err := h.operators.Settings(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newSettingsView(s))
}

type updateSettingsReq struct {
	DispatchMode                 string  `json:"dispatch_mode"`
	AutoDispatchEnabled          bool    `json:"auto_dispatch_enabled"`
	MaxAutoAcceptWaitTimeMinutes int     `json:"max_auto_accept_wait_time_minutes"`
	EnableSurgePricing           bool    `json:"enable_surge_pricing"`
	OperatorSurgePercentage      float64 `json:"operator_surge_percentage"`
}

func (h *OperatorHandler) UpdateSettings(c *gin.Context) {
	if !sameOperator(c) {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	var req updateSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	s, err := h.operators.UpdateSettings(c.Request.Context(), operator.Settings{
		OperatorID:                   c.Param("id"),
		DispatchMode:                 operator.DispatchMode(req.DispatchMode),
		AutoDispatchEnabled:          req.AutoDispatchEnabled,
		MaxAutoAcceptWaitTimeMinutes: req.MaxAutoAcceptWaitTimeMinutes,
		EnableSurgePricing:           req.EnableSurgePricing,
		OperatorSurgePercentage:      req.OperatorSurgePercentage,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newSettingsView(s))
}

// sameOperator lets operator staff touch only their own operator; admins may touch any.
func sameOperator(c *gin.Context) bool {
	if middleware.CallerRole(c) == middleware.RoleAdmin {
		return true
	}
	return middleware.CallerUID(c) == c.Param("id")
}
