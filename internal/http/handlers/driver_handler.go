// README: Driver handlers for availability, pause and location reports.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/http/middleware"
	"cabdispatch/internal/modules/driver"
	"cabdispatch/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
}

func NewDriverHandler(svc *driver.Service) *DriverHandler {
	return &DriverHandler{drivers: svc}
}

type driverView struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	OperatorCode    string     `json:"operator_code"`
	VehicleCategory string     `json:"vehicle_category,omitempty"`
	VehicleDetails  string     `json:"vehicle_details,omitempty"`
	Status          string     `json:"status"`
	Availability    string     `json:"availability"`
	Location        *pointView `json:"location,omitempty"`
	Paused          bool       `json:"paused"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func newDriverView(d *driver.Driver) driverView {
	v := driverView{
		ID:              string(d.ID),
		Name:            d.Name,
		OperatorCode:    d.OperatorCode,
		VehicleCategory: d.VehicleCategory,
		VehicleDetails:  d.VehicleDetails,
		Status:          string(d.Status),
		Availability:    string(d.Availability),
		Paused:          d.Paused,
		UpdatedAt:       d.UpdatedAt,
	}
	if d.Location != nil {
		v.Location = &pointView{Lat: d.Location.Lat, Lng: d.Location.Lng}
	}
	return v
}

type goOnlineReq struct {
	Name            string  `json:"name"`
	OperatorCode    string  `json:"operator_code"`
	VehicleCategory string  `json:"vehicle_category"`
	VehicleDetails  string  `json:"vehicle_details"`
	Phone           string  `json:"phone"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
}

func (h *DriverHandler) Me(c *gin.Context) {
	d, err := h.drivers.Get(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newDriverView(d))
}

func (h *DriverHandler) Online(c *gin.Context) {
	var req goOnlineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d, err := h.drivers.GoOnline(c.Request.Context(), driver.GoOnlineCommand{
		DriverID:        types.ID(middleware.CallerUID(c)),
		Name:            req.Name,
		OperatorCode:    req.OperatorCode,
		VehicleCategory: req.VehicleCategory,
		VehicleDetails:  req.VehicleDetails,
		Phone:           req.Phone,
		Location:        types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newDriverView(d))
}

func (h *DriverHandler) Offline(c *gin.Context) {
	if err := h.drivers.GoOffline(c.Request.Context(), types.ID(middleware.CallerUID(c))); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"availability": driver.AvailabilityOffline})
}

type pauseReq struct {
	Paused *bool `json:"paused"`
}

func (h *DriverHandler) Pause(c *gin.Context) {
	var req pauseReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Paused == nil {
		writeError(c, http.StatusBadRequest, "paused is required")
		return
	}
	if err := h.drivers.SetPaused(c.Request.Context(), types.ID(middleware.CallerUID(c)), *req.Paused); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"paused": *req.Paused})
}

type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *DriverHandler) Location(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	m, err := h.drivers.UpdateLocation(c.Request.Context(), types.ID(middleware.CallerUID(c)), types.Point{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"driver_id": m.DriverID, "location": pointView{Lat: m.After.Lat, Lng: m.After.Lng}})
}
