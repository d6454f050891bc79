package websocket

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub is the connection registry. It tracks live connections by connection ID
// and the conversation rooms each one has joined, and fulfills the
// service.Broadcaster contract. Presence semantics live in the presence
// service; the hub only moves bytes.
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*Client
	rooms map[uuid.UUID]map[uuid.UUID]*Client

	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[uuid.UUID]*Client),
		rooms:  make(map[uuid.UUID]map[uuid.UUID]*Client),
		logger: logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.conns[client.connID] = client
	h.mu.Unlock()

	h.logger.Info("client registered",
		zap.String("connId", client.connID.String()),
		zap.String("userId", client.userID.String()))
}

// Unregister removes the connection from the registry and from every room it
// joined. The send channel is closed here, once, so writePump exits.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.conns[client.connID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, client.connID)
	for roomID, members := range h.rooms {
		if _, ok := members[client.connID]; ok {
			delete(members, client.connID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()

	close(client.send)

	h.logger.Info("client unregistered",
		zap.String("connId", client.connID.String()),
		zap.String("userId", client.userID.String()))
}

func (h *Hub) JoinRoom(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[conversationID][client.connID] = client
}

func (h *Hub) LeaveRoom(client *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(members, client.connID)
	if len(members) == 0 {
		delete(h.rooms, conversationID)
	}
}

// ConnCount reports the number of live connections, for the readiness probe
// and metrics.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SendToConn delivers a payload to one connection. A full send buffer drops
// the payload rather than blocking the caller.
func (h *Hub) SendToConn(connID uuid.UUID, payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	client := h.conns[connID]
	h.mu.RUnlock()
	if client == nil {
		return
	}
	client.trySend(payload)
}

func (h *Hub) SendToConns(connIDs []uuid.UUID, payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	clients := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.conns[id]; ok {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(payload)
	}
}

// BroadcastToConversation sends a payload to every connection that joined the
// conversation room on this node. Cross-node delivery goes through the Redis
// conversation channel instead.
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	members := h.rooms[conversationID]
	clients := make([]*Client, 0, len(members))
	for _, c := range members {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(payload)
	}
}
