package handler

import (
	"errors"
	"net/http"

	"interview-concierge/internal/admin"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListSessions returns the session overview
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.admin.ListSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// AbandonSession marks an in-progress session as abandoned
func (h *Handler) AbandonSession(c *gin.Context) {
	session, err := h.admin.Abandon(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, admin.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, admin.ErrNotInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("Failed to abandon session", zap.String("record_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, session)
}
