package model

import (
	"time"

	"github.com/google/uuid"
)

// VoiceRoom is the walkie-talkie channel bound one-to-one with a
// conversation, created lazily on first access.
type VoiceRoom struct {
	BaseModel
	ConversationID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex" json:"conversationId"`
	IsLive         bool               `gorm:"default:true" json:"isLive"`
	Participants   []VoiceParticipant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
}

func (VoiceRoom) TableName() string {
	return "voice_rooms"
}

// VoiceParticipant tracks one user's membership in a room. Active iff LeftAt
// is null; rejoin resets LeftAt instead of inserting a second row, so there
// is at most one row per (room, user).
type VoiceParticipant struct {
	BaseModel
	RoomID      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_room_user" json:"roomId"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_room_user" json:"userId"`
	Muted       bool       `gorm:"default:false" json:"muted"`
	IsListening bool       `gorm:"default:true" json:"isListening"`
	JoinedAt    time.Time  `gorm:"autoCreateTime" json:"joinedAt"`
	LeftAt      *time.Time `gorm:"type:timestamptz" json:"leftAt,omitempty"`
	LastSeenAt  time.Time  `gorm:"autoCreateTime" json:"lastSeenAt"`
}

func (VoiceParticipant) TableName() string {
	return "voice_participants"
}

func (p *VoiceParticipant) Active() bool {
	return p.LeftAt == nil
}

// VoiceTransmission is one immutable push-to-talk utterance.
type VoiceTransmission struct {
	BaseModel
	RoomID    uuid.UUID `gorm:"type:uuid;not null;index" json:"roomId"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null;index" json:"senderId"`
	AudioURL  string    `gorm:"type:text;not null" json:"audioUrl"`
	DurationS *int      `json:"durationS,omitempty"`
}

func (VoiceTransmission) TableName() string {
	return "voice_transmissions"
}

// VoiceTransmissionPlayback records a playback ack. Upserted idempotently;
// cosmetic, not required for delivery correctness.
type VoiceTransmissionPlayback struct {
	BaseModel
	TransmissionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_transmission_user" json:"transmissionId"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:uq_transmission_user" json:"userId"`
	PlayedAt       time.Time `gorm:"autoCreateTime" json:"playedAt"`
}

func (VoiceTransmissionPlayback) TableName() string {
	return "voice_transmission_playbacks"
}
