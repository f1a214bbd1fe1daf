package billing

import (
	"net/http"

	"dialdesk/internal/auth"
	"dialdesk/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler serves the on-demand monthly snapshot.
type Handler struct {
	Service *Service
}

func (h Handler) Snapshot(c *gin.Context) {
	agentID, err := auth.AgentID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	snap, err := h.Service.ForAgent(c.Request.Context(), agentID)
	if err != nil {
		logger.FromGin(c).Error("billing snapshot failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to compute billing"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
