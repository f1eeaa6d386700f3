// README: Admin handlers; manual timeout sweep.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cabdispatch/internal/modules/sweeper"
)

type AdminHandler struct {
	sweeper *sweeper.Sweeper
}

func NewAdminHandler(s *sweeper.Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: s}
}

func (h *AdminHandler) Sweep(c *gin.Context) {
	res, err := h.sweeper.Sweep(c.Request.Context(), time.Now())
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"found":         res.Found,
		"processed":     res.Processed,
		"notifications": res.Notifications,
	})
}
