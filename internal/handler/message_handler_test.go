package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voice-chat-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// mockMessageService stubs the operations the handler under test calls.
type mockMessageService struct {
	createFn func(ctx context.Context, conversationID, senderID uuid.UUID, input service.CreateMessageInput) (*service.MessageWire, error)
	markReadFn func(ctx context.Context, messageID, userID uuid.UUID) error
}

func (m *mockMessageService) Create(ctx context.Context, conversationID, senderID uuid.UUID, input service.CreateMessageInput) (*service.MessageWire, error) {
	return m.createFn(ctx, conversationID, senderID, input)
}

func (m *mockMessageService) List(ctx context.Context, conversationID, userID uuid.UUID, limit int, cursor string) ([]service.MessageWire, error) {
	return nil, nil
}

func (m *mockMessageService) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error {
	return nil
}

func (m *mockMessageService) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	if m.markReadFn != nil {
		return m.markReadFn(ctx, messageID, userID)
	}
	return nil
}

func (m *mockMessageService) Delete(ctx context.Context, messageID, userID uuid.UUID) error {
	return nil
}

func (m *mockMessageService) ReadReceipts(ctx context.Context, messageID, userID uuid.UUID) ([]service.ReadReceipt, error) {
	return nil, nil
}

func setupMessageRouter(svc service.MessageService, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
	})
	h := NewMessageHandler(svc, zap.NewNop())
	r.POST("/conversations/:conversationId/messages", h.SendMessage)
	r.POST("/messages/:messageId/read", h.MarkRead)
	return r
}

func TestSendMessage_StatusMapping(t *testing.T) {
	userID := uuid.New()
	convID := uuid.New()

	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{"validation maps to 400", service.ErrValidation, http.StatusBadRequest, "BAD_REQUEST"},
		{"forbidden maps to 403", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"not found maps to 404", service.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockMessageService{
				createFn: func(ctx context.Context, conversationID, senderID uuid.UUID, input service.CreateMessageInput) (*service.MessageWire, error) {
					return nil, tc.serviceErr
				},
			}
			r := setupMessageRouter(svc, userID)

			w := httptest.NewRecorder()
			body := strings.NewReader(`{"type":"TEXT","text":"hi"}`)
			req := httptest.NewRequest(http.MethodPost, "/conversations/"+convID.String()+"/messages", body)
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantCode)
			assert.Contains(t, w.Body.String(), `"success":false`)
		})
	}
}

func TestSendMessage_Success(t *testing.T) {
	userID := uuid.New()
	convID := uuid.New()
	msgID := uuid.New()

	svc := &mockMessageService{
		createFn: func(ctx context.Context, conversationID, senderID uuid.UUID, input service.CreateMessageInput) (*service.MessageWire, error) {
			assert.Equal(t, convID, conversationID)
			assert.Equal(t, userID, senderID)
			assert.Equal(t, "TEXT", input.Type)
			return &service.MessageWire{ID: msgID, ConversationID: conversationID, SenderID: senderID}, nil
		},
	}
	r := setupMessageRouter(svc, userID)

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"type":"TEXT","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+convID.String()+"/messages", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), msgID.String())
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestSendMessage_InvalidConversationID(t *testing.T) {
	r := setupMessageRouter(&mockMessageService{}, uuid.New())

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"type":"TEXT","text":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/conversations/not-a-uuid/messages", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkRead_OK(t *testing.T) {
	userID := uuid.New()
	msgID := uuid.New()
	called := false
	svc := &mockMessageService{
		markReadFn: func(ctx context.Context, messageID, uid uuid.UUID) error {
			called = true
			assert.Equal(t, msgID, messageID)
			assert.Equal(t, userID, uid)
			return nil
		},
	}
	r := setupMessageRouter(svc, userID)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/messages/"+msgID.String()+"/read", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}
