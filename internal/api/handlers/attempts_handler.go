package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gradlink/proctor/internal/history"
	"github.com/gradlink/proctor/internal/utils"
)

type AttemptsHandler struct {
	store history.Store
}

func NewAttemptsHandler(store history.Store) *AttemptsHandler {
	return &AttemptsHandler{store: store}
}

func (h *AttemptsHandler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		writeError(c, utils.E(utils.CodeUnavailable, "AttemptsHandler", "attempt history is disabled", nil))
		return false
	}
	return true
}

func (h *AttemptsHandler) List(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": rows})
}

func (h *AttemptsHandler) Get(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	row, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, row)
}
