package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gradlink/proctor/internal/proctor"
)

// StatusHandler exposes a read-only view of the running interview.
type StatusHandler struct {
	ctrl *proctor.Controller
}

func NewStatusHandler(ctrl *proctor.Controller) *StatusHandler {
	return &StatusHandler{ctrl: ctrl}
}

func (h *StatusHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.Snapshot())
}

// End force-stops the active interview from the monitor side.
func (h *StatusHandler) End(c *gin.Context) {
	if err := h.ctrl.EndSession(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
