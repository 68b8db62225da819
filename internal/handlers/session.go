package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/middleware"
	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

// CreateSession issues an anonymous session ticket for the requested display
// name. Anyone may ask for one; the ticket only pins the name to a session id.
func CreateSession(secret string, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		name := matchmaking.NormalizeDisplayName(req.DisplayName)
		ticket, claims, err := middleware.IssueTicket(secret, name, ttl)
		if err != nil {
			log.Error("failed to issue session ticket", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to issue ticket",
			})
			return
		}

		c.JSON(http.StatusCreated, models.SessionResponse{
			Ticket:      ticket,
			SessionID:   claims.Subject,
			DisplayName: name,
			ExpiresAt:   claims.ExpiresAt.Time,
		})
	}
}
