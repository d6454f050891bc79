package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"voice-chat-service/internal/middleware"
	"voice-chat-service/internal/repository"
	"voice-chat-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TokenValidator resolves an access token to a user ID. The auth middleware's
// validator satisfies this.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// inbound is the client-to-server envelope. All fields of data are optional;
// each operation reads the ones it needs.
type inbound struct {
	Event string `json:"event"`
	Data  struct {
		ConversationID string `json:"conversationId,omitempty"`
		Status         string `json:"status,omitempty"`
	} `json:"data"`
}

// Inbound operation names.
const (
	opPresenceSubscribe      = "presence:subscribe"
	opPresenceUnsubscribe    = "presence:unsubscribe"
	opPresenceHere           = "presence:here"
	opPresencePing           = "presence:ping"
	opPresenceAnnounceGlobal = "presence:announce_global"
	opPresenceRequestBulk    = "presence:request_bulk"
	opConversationJoin       = "conversation:join"
	opConversationLeave      = "conversation:leave"
)

type WSHandler struct {
	hub      *Hub
	presence *service.PresenceService
	convRepo repository.ConversationRepository
	tokens   TokenValidator
	logger   *zap.Logger
}

func NewWSHandler(
	hub *Hub,
	presence *service.PresenceService,
	convRepo repository.ConversationRepository,
	tokens TokenValidator,
	logger *zap.Logger,
) *WSHandler {
	return &WSHandler{
		hub:      hub,
		presence: presence,
		convRepo: convRepo,
		tokens:   tokens,
		logger:   logger,
	}
}

// HandleWebSocket upgrades the connection and runs the read loop. The token
// comes as a query parameter because browsers cannot set headers on websocket
// upgrades.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	userID, err := h.tokens.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(conn, userID, h.hub, h.logger)

	h.hub.Register(client)
	h.presence.Connect(client.connID, userID)
	middleware.RecordWebSocketConnection()

	go client.writePump()
	h.readPump(client)
}

func (h *WSHandler) readPump(client *Client) {
	defer func() {
		client.cancelSubscriptions()
		h.presence.Disconnect(client.connID, client.userID)
		h.hub.Unregister(client)
		client.conn.Close()
		middleware.RecordWebSocketDisconnection()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket error", zap.Error(err))
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			h.logger.Warn("failed to parse message", zap.Error(err))
			continue
		}

		h.handleMessage(client, &msg)
	}
}

// handleMessage dispatches one inbound operation. Malformed or unauthorized
// operations are dropped without a reply; presence is fire-and-forget.
func (h *WSHandler) handleMessage(client *Client, msg *inbound) {
	ctx := context.Background()

	switch msg.Event {
	case opPresenceSubscribe:
		conversationID, ok := parseConversationID(msg)
		if !ok {
			return
		}
		h.presence.Subscribe(client.connID, conversationID)

	case opPresenceUnsubscribe:
		conversationID, ok := parseConversationID(msg)
		if !ok {
			return
		}
		h.presence.Unsubscribe(client.connID, conversationID)

	case opPresenceHere:
		conversationID, ok := parseConversationID(msg)
		if !ok {
			return
		}
		h.presence.Here(ctx, client.userID, conversationID, msg.Data.Status)

	case opPresencePing:
		h.presence.Ping(ctx, client.connID, client.userID)

	case opPresenceAnnounceGlobal:
		h.presence.AnnounceGlobal(ctx, client.userID, msg.Data.Status)

	case opPresenceRequestBulk:
		h.presence.RequestBulk(ctx, client.connID, client.userID)

	case opConversationJoin:
		conversationID, ok := parseConversationID(msg)
		if !ok {
			return
		}
		isMember, err := h.convRepo.IsParticipant(conversationID, client.userID)
		if err != nil || !isMember {
			return
		}
		h.hub.JoinRoom(client, conversationID)
		client.subscribeConversation(conversationID)

	case opConversationLeave:
		conversationID, ok := parseConversationID(msg)
		if !ok {
			return
		}
		h.hub.LeaveRoom(client, conversationID)
		client.unsubscribeConversation(conversationID)

	default:
		h.logger.Warn("unknown event", zap.String("event", msg.Event))
	}
}

func parseConversationID(msg *inbound) (uuid.UUID, bool) {
	id, err := uuid.Parse(msg.Data.ConversationID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
