package handler

import (
	"net/http"

	"voice-chat-service/internal/middleware"
	"voice-chat-service/internal/repository"
	"voice-chat-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PresenceHandler struct {
	presenceService *service.PresenceService
	convRepo        repository.ConversationRepository
	logger          *zap.Logger
}

func NewPresenceHandler(presenceService *service.PresenceService, convRepo repository.ConversationRepository, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		convRepo:        convRepo,
		logger:          logger,
	}
}

// GetPresence returns the conversation's current presence snapshot over HTTP,
// for clients that have not opened a websocket yet.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid conversation ID")
		return
	}

	isMember, err := h.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		h.logger.Error("failed to check membership", zap.Error(err))
		respondErrorCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if !isMember {
		respondErrorCode(c, http.StatusForbidden, "FORBIDDEN", "You are not a participant of this conversation")
		return
	}

	respondSuccess(c, http.StatusOK, h.presenceService.Snapshot(conversationID))
}
