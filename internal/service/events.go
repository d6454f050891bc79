package service

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event names on the wire. Outbound only; inbound operation names live with
// the websocket dispatcher.
const (
	EventPresenceUpdate         = "presence:update"
	EventPresenceBulk           = "presence:bulk"
	EventVoiceParticipantJoined = "voice:participant:joined"
	EventVoiceParticipantLeft   = "voice:participant:left"
	EventVoiceTransmission      = "voice:transmission"
	EventMessageNew             = "message:new"
	EventMessageDeleted         = "message:deleted"
)

// Broadcaster is the transport contract the hub fulfills: direct send to a
// connection and broadcast to a conversation room. Delivery is
// fire-and-forget, at-least-once, last-value-wins.
type Broadcaster interface {
	SendToConn(connID uuid.UUID, payload []byte)
	SendToConns(connIDs []uuid.UUID, payload []byte)
	BroadcastToConversation(conversationID uuid.UUID, payload []byte)
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Envelope wraps an event payload in the wire envelope. Returns nil when the
// payload cannot be marshaled; senders skip nil payloads.
func Envelope(event string, data interface{}) []byte {
	b, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		return nil
	}
	return b
}
