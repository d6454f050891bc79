package handler

import (
	"net/http"
	"strconv"

	"voice-chat-service/internal/middleware"
	"voice-chat-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messageService service.MessageService
	logger         *zap.Logger
}

func NewMessageHandler(messageService service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger,
	}
}

// GetMessages returns a page of messages, oldest first. Cursor is the id of
// the oldest message from the previous page.
func (h *MessageHandler) GetMessages(c *gin.Context) {
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

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	cursor := c.Query("cursor")

	messages, err := h.messageService.List(c.Request.Context(), conversationID, userID, limit, cursor)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, messages)
}

// SendMessage creates a message and fans out message:new.
func (h *MessageHandler) SendMessage(c *gin.Context) {
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

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	message, err := h.messageService.Create(c.Request.Context(), conversationID, userID, service.CreateMessageInput{
		Type:            req.Type,
		Text:            req.Text,
		MediaURL:        req.MediaURL,
		MediaKind:       req.MediaKind,
		MediaDurationS:  req.MediaDurationS,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		LocationAddress: req.LocationAddress,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.RecordMessageSent(string(message.Type))
	respondSuccess(c, http.StatusCreated, message)
}

// MarkDelivered stamps the caller's delivered receipt.
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid message ID")
		return
	}

	if err := h.messageService.MarkDelivered(c.Request.Context(), messageID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"messageId": messageID})
}

// MarkRead stamps the caller's read receipt.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid message ID")
		return
	}

	if err := h.messageService.MarkRead(c.Request.Context(), messageID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.RecordMessageRead()
	respondSuccess(c, http.StatusOK, gin.H{"messageId": messageID})
}

// DeleteMessage removes a message for everyone. Sender only.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid message ID")
		return
	}

	if err := h.messageService.Delete(c.Request.Context(), messageID, userID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{"messageId": messageID})
}

// GetReadReceipts lists who read the message and when.
func (h *MessageHandler) GetReadReceipts(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		respondErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		respondErrorCode(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid message ID")
		return
	}

	receipts, err := h.messageService.ReadReceipts(c.Request.Context(), messageID, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, receipts)
}
