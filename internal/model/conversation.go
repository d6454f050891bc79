package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationTypeDM    ConversationType = "DM"
	ConversationTypeGroup ConversationType = "GROUP"
)

// Conversation is a chat thread, direct or group. Conversation CRUD lives in
// another service; this service only reads membership and owns the realtime
// state hanging off of it.
type Conversation struct {
	BaseModel
	ConversationType ConversationType          `gorm:"type:varchar(20);not null" json:"conversationType"`
	Title            string                    `gorm:"type:varchar(100)" json:"title,omitempty"`
	Participants     []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationParticipant is the durable membership record. It is the system
// of record for every "is user X a member of conversation Y" check.
type ConversationParticipant struct {
	BaseModel
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_conversation_user" json:"conversationId"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_conversation_user" json:"userId"`
	JoinedAt       time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}
