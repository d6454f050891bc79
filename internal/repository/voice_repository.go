// internal/repository/voice_repository.go
package repository

import (
	"time"

	"voice-chat-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VoiceRepository interface {
	GetOrCreateRoom(conversationID uuid.UUID) (*model.VoiceRoom, error)
	GetRoomByConversation(conversationID uuid.UUID) (*model.VoiceRoom, error)

	// UpsertParticipant reactivates the (room,user) row or inserts it. At most
	// one row per pair ever exists; rejoin clears leftAt.
	UpsertParticipant(roomID, userID uuid.UUID) (*model.VoiceParticipant, error)
	LeaveParticipant(roomID, userID uuid.UUID) (int64, error)
	ActiveParticipants(roomID uuid.UUID) ([]model.VoiceParticipant, error)
	FindActiveParticipant(roomID, userID uuid.UUID) (*model.VoiceParticipant, error)
	TouchParticipant(roomID, userID uuid.UUID) error

	CreateTransmission(t *model.VoiceTransmission) error
	GetTransmission(transmissionID uuid.UUID) (*model.VoiceTransmission, error)
	UpsertPlayback(transmissionID, userID uuid.UUID) error
}

type voiceRepository struct {
	db *gorm.DB
}

func NewVoiceRepository(db *gorm.DB) VoiceRepository {
	return &voiceRepository{db: db}
}

func (r *voiceRepository) GetOrCreateRoom(conversationID uuid.UUID) (*model.VoiceRoom, error) {
	var room model.VoiceRoom
	err := r.db.First(&room, "conversation_id = ?", conversationID).Error
	if err == nil {
		return &room, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	room = model.VoiceRoom{
		ConversationID: conversationID,
		IsLive:         true,
	}
	if err := r.db.Create(&room).Error; err != nil {
		// A concurrent create may have won on the unique index.
		if ferr := r.db.First(&room, "conversation_id = ?", conversationID).Error; ferr == nil {
			return &room, nil
		}
		return nil, err
	}
	return &room, nil
}

func (r *voiceRepository) GetRoomByConversation(conversationID uuid.UUID) (*model.VoiceRoom, error) {
	var room model.VoiceRoom
	err := r.db.First(&room, "conversation_id = ?", conversationID).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *voiceRepository) UpsertParticipant(roomID, userID uuid.UUID) (*model.VoiceParticipant, error) {
	now := time.Now()
	participant := model.VoiceParticipant{
		RoomID:      roomID,
		UserID:      userID,
		Muted:       false,
		IsListening: true,
		LastSeenAt:  now,
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"left_at":      nil,
			"is_listening": true,
			"last_seen_at": now,
		}),
	}).Create(&participant).Error
	if err != nil {
		return nil, err
	}

	// Re-read so the caller sees the surviving row, not the insert candidate.
	var result model.VoiceParticipant
	if err := r.db.First(&result, "room_id = ? AND user_id = ?", roomID, userID).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *voiceRepository) LeaveParticipant(roomID, userID uuid.UUID) (int64, error) {
	result := r.db.Model(&model.VoiceParticipant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Updates(map[string]interface{}{
			"left_at":      time.Now(),
			"is_listening": false,
		})

	return result.RowsAffected, result.Error
}

func (r *voiceRepository) ActiveParticipants(roomID uuid.UUID) ([]model.VoiceParticipant, error) {
	var participants []model.VoiceParticipant
	err := r.db.Where("room_id = ? AND left_at IS NULL", roomID).
		Find(&participants).Error

	return participants, err
}

func (r *voiceRepository) FindActiveParticipant(roomID, userID uuid.UUID) (*model.VoiceParticipant, error) {
	var participant model.VoiceParticipant
	err := r.db.First(&participant, "room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *voiceRepository) TouchParticipant(roomID, userID uuid.UUID) error {
	return r.db.Model(&model.VoiceParticipant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Update("last_seen_at", time.Now()).Error
}

func (r *voiceRepository) CreateTransmission(t *model.VoiceTransmission) error {
	return r.db.Create(t).Error
}

func (r *voiceRepository) GetTransmission(transmissionID uuid.UUID) (*model.VoiceTransmission, error) {
	var transmission model.VoiceTransmission
	err := r.db.First(&transmission, "id = ?", transmissionID).Error
	if err != nil {
		return nil, err
	}
	return &transmission, nil
}

func (r *voiceRepository) UpsertPlayback(transmissionID, userID uuid.UUID) error {
	playback := model.VoiceTransmissionPlayback{
		TransmissionID: transmissionID,
		UserID:         userID,
		PlayedAt:       time.Now(),
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "transmission_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"played_at": time.Now(),
		}),
	}).Create(&playback).Error
}
