package handler

import (
	"errors"
	"net/http"

	"voice-chat-service/internal/service"

	"github.com/gin-gonic/gin"
)

// ========================================
// Request DTOs
// ========================================

type SendMessageRequest struct {
	Type            string   `json:"type" binding:"required"`
	Text            *string  `json:"text"`
	MediaURL        *string  `json:"mediaUrl"`
	MediaKind       *string  `json:"mediaKind"`
	MediaDurationS  *int     `json:"mediaDurationS"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	LocationAddress *string  `json:"locationAddress"`
}

type TransmitRequest struct {
	AudioURL  string `json:"audioUrl" binding:"required"`
	DurationS *int   `json:"durationS"`
}

// ========================================
// Response envelope
// ========================================

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

// respondServiceError maps the service sentinels onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondErrorCode(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondErrorCode(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	default:
		respondErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
