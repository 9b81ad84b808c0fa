package handler

import (
	"errors"
	"net/http"

	"interview-concierge/internal/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type passcodeRequest struct {
	Passcode string `json:"passcode" binding:"required"`
}

// ExchangePasscode issues a bearer token for a valid passcode
func (h *Handler) ExchangePasscode(c *gin.Context) {
	var req passcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passcode is required"})
		return
	}

	token, expiresAt, err := h.gate.Issue(req.Passcode)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidPasscode):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid passcode"})
		case errors.Is(err, auth.ErrGateDisabled):
			c.JSON(http.StatusNotFound, gin.H{"error": "Passcode gate is disabled"})
		default:
			h.logger.Error("Failed to issue token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
	})
}
