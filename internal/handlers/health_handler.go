package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/slot-coordinator/internal/httpresp"
)

type HealthHandler struct {
	sessionID string
}

func NewHealthHandler(sessionID string) *HealthHandler {
	return &HealthHandler{sessionID: sessionID}
}

func (h *HealthHandler) Health(c *gin.Context) {
	httpresp.OK(c, gin.H{
		"status":     "ok",
		"session_id": h.sessionID,
	})
}
