package websocket

import (
	"context"
	"sync"
	"time"

	"voice-chat-service/internal/database"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one websocket connection. Each connection gets its own connID so
// a user on several devices holds several independent clients.
type Client struct {
	connID uuid.UUID
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *zap.Logger

	// per-conversation Redis subscription cancels, keyed by conversation ID
	subsMu sync.Mutex
	subs   map[uuid.UUID]context.CancelFunc
}

func newClient(conn *websocket.Conn, userID uuid.UUID, hub *Hub, logger *zap.Logger) *Client {
	return &Client{
		connID: uuid.New(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    hub,
		logger: logger,
		subs:   make(map[uuid.UUID]context.CancelFunc),
	}
}

func (c *Client) ConnID() uuid.UUID { return c.connID }
func (c *Client) UserID() uuid.UUID { return c.userID }

// trySend never blocks; a slow consumer loses updates instead of stalling
// every other delivery.
func (c *Client) trySend(payload []byte) {
	defer func() {
		// send may race with Unregister closing the channel
		recover()
	}()
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("send buffer full, dropping payload",
			zap.String("connId", c.connID.String()))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// subscribeConversation opens a Redis subscription on the conversation
// channel and pipes payloads into the send buffer until leaveConversation or
// disconnect cancels it. Joining twice is a no-op.
func (c *Client) subscribeConversation(conversationID uuid.UUID) {
	c.subsMu.Lock()
	if _, ok := c.subs[conversationID]; ok {
		c.subsMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.subs[conversationID] = cancel
	c.subsMu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("recovered from panic in conversation subscription",
					zap.Any("panic", r),
					zap.String("conversationId", conversationID.String()))
			}
		}()

		pubsub := database.SubscribeConversationEvents(ctx, conversationID.String())
		if pubsub == nil {
			// no Redis; the in-process room broadcast still covers this node
			return
		}
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.trySend([]byte(msg.Payload))
			}
		}
	}()
}

func (c *Client) unsubscribeConversation(conversationID uuid.UUID) {
	c.subsMu.Lock()
	cancel, ok := c.subs[conversationID]
	if ok {
		delete(c.subs, conversationID)
	}
	c.subsMu.Unlock()
	if ok {
		cancel()
	}
}

func (c *Client) cancelSubscriptions() {
	c.subsMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.subs))
	for id, cancel := range c.subs {
		cancels = append(cancels, cancel)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
