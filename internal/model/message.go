package model

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeImage    MessageType = "IMAGE"
	MessageTypeVoice    MessageType = "VOICE"
	MessageTypeLocation MessageType = "LOCATION"
	MessageTypeSystem   MessageType = "SYSTEM"
)

// AggregateStatus is the sender-visible rollup of the recipients'
// delivery/read state. It only ever advances sent -> delivered -> seen.
type AggregateStatus string

const (
	AggregateStatusSent      AggregateStatus = "sent"
	AggregateStatusDelivered AggregateStatus = "delivered"
	AggregateStatusSeen      AggregateStatus = "seen"
)

// Message is immutable once created; edits are not supported, only deletion
// by the sender.
type Message struct {
	BaseModel
	ConversationID  uuid.UUID       `gorm:"type:uuid;not null;index:idx_messages_conversation_created" json:"conversationId"`
	SenderID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"senderId"`
	MessageType     MessageType     `gorm:"type:varchar(20);not null;default:'TEXT'" json:"messageType"`
	Text            *string         `gorm:"type:text" json:"text,omitempty"`
	MediaURL        *string         `gorm:"type:text" json:"mediaUrl,omitempty"`
	MediaKind       *string         `gorm:"type:varchar(20)" json:"mediaKind,omitempty"`
	MediaDurationS  *int            `json:"mediaDurationS,omitempty"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	LocationAddress *string         `gorm:"type:varchar(255)" json:"locationAddress,omitempty"`
	Statuses        []MessageStatus `gorm:"foreignKey:MessageID" json:"statuses,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageStatus is the per-recipient delivery/read row. Exactly one row per
// participant is created with the message; late joiners get none. Both
// timestamps are monotonic and never unset.
type MessageStatus struct {
	BaseModel
	MessageID   uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_message_user" json:"messageId"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_message_user" json:"userId"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
}

func (MessageStatus) TableName() string {
	return "message_statuses"
}

// RollupStatus computes the aggregate status from the non-sender rows.
// Empty set (a conversation with only the sender) rolls up to "sent".
func RollupStatus(statuses []MessageStatus, senderID uuid.UUID) AggregateStatus {
	others := 0
	read := 0
	delivered := 0
	for _, s := range statuses {
		if s.UserID == senderID {
			continue
		}
		others++
		if s.ReadAt != nil {
			read++
		}
		if s.DeliveredAt != nil {
			delivered++
		}
	}
	if others == 0 {
		return AggregateStatusSent
	}
	if read == others {
		return AggregateStatusSeen
	}
	if delivered == others {
		return AggregateStatusDelivered
	}
	return AggregateStatusSent
}
