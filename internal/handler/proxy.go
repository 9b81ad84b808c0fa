package handler

import (
	"errors"
	"net/http"

	"interview-concierge/internal/models"
	"interview-concierge/internal/proxy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Proxy forwards create/update/list to the record backend
func (h *Handler) Proxy(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	var req proxy.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.proxy.Do(c.Request.Context(), req)
	if err != nil {
		var unknown *proxy.UnknownActionError
		var upstream *models.UpstreamError
		switch {
		case errors.As(err, &unknown),
			errors.Is(err, proxy.ErrTableRequired),
			errors.Is(err, proxy.ErrRecordIDRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &upstream):
			c.Data(upstream.StatusCode, "application/json", upstream.Body)
		default:
			h.logger.Error("Proxy request failed",
				zap.String("action", req.Action),
				zap.String("table", req.Table),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
