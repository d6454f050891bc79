package handler

import (
	"net/http"

	"voice-chat-service/internal/middleware"
	"voice-chat-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type VoiceHandler struct {
	voiceService service.VoiceService
	logger       *zap.Logger
}

func NewVoiceHandler(voiceService service.VoiceService, logger *zap.Logger) *VoiceHandler {
	return &VoiceHandler{
		voiceService: voiceService,
		logger:       logger,
	}
}

func (h *VoiceHandler) auth(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return uuid.Nil, uuid.Nil, false
	}
	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid conversation ID")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, conversationID, true
}

// GetRoom returns the conversation's voice room, creating it on first access.
func (h *VoiceHandler) GetRoom(c *gin.Context) {
	userID, conversationID, ok := h.auth(c)
	if !ok {
		return
	}

	room, err := h.voiceService.GetOrCreateRoom(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, room)
}

// Join adds the caller to the voice room as an active listener.
func (h *VoiceHandler) Join(c *gin.Context) {
	userID, conversationID, ok := h.auth(c)
	if !ok {
		return
	}

	participant, err := h.voiceService.Join(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.RecordVoiceJoin()
	respondSuccess(c, http.StatusOK, participant)
}

// Leave removes the caller from the voice room. Leaving a room you were not
// in succeeds without side effects.
func (h *VoiceHandler) Leave(c *gin.Context) {
	userID, conversationID, ok := h.auth(c)
	if !ok {
		return
	}

	if err := h.voiceService.Leave(c.Request.Context(), conversationID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.RecordVoiceLeave()
	respondSuccess(c, http.StatusOK, gin.H{"conversationId": conversationID})
}

// Transmit records a walkie-talkie clip and relays it to the listeners that
// were in the room at transmit time.
func (h *VoiceHandler) Transmit(c *gin.Context) {
	userID, conversationID, ok := h.auth(c)
	if !ok {
		return
	}

	var req TransmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	transmission, err := h.voiceService.Transmit(c.Request.Context(), conversationID, userID, req.AudioURL, req.DurationS)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.RecordVoiceTransmission()
	respondSuccess(c, http.StatusCreated, transmission)
}

// MarkPlayed records that the caller played a transmission back.
func (h *VoiceHandler) MarkPlayed(c *gin.Context) {
	userID, conversationID, ok := h.auth(c)
	if !ok {
		return
	}

	transmissionID, err := uuid.Parse(c.Param("transmissionId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid transmission ID")
		return
	}

	if err := h.voiceService.MarkPlayed(c.Request.Context(), conversationID, userID, transmissionID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"transmissionId": transmissionID})
}

// Heartbeat refreshes the caller's participant liveness.
func (h *VoiceHandler) Heartbeat(c *gin.Context) {
	userID, conversationID, ok := h.auth(c)
	if !ok {
		return
	}

	if err := h.voiceService.Heartbeat(c.Request.Context(), conversationID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"conversationId": conversationID})
}
