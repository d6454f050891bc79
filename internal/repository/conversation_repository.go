package repository

import (
	"voice-chat-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository is the membership read side. Conversation CRUD is
// owned by another service; this one only checks and lists membership.
type ConversationRepository interface {
	IsParticipant(conversationID, userID uuid.UUID) (bool, error)
	GetParticipants(conversationID uuid.UUID) ([]model.ConversationParticipant, error)
	ConversationIDsByUser(userID uuid.UUID) ([]uuid.UUID, error)
}

type conversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) IsParticipant(conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&model.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error

	return count > 0, err
}

func (r *conversationRepository) GetParticipants(conversationID uuid.UUID) ([]model.ConversationParticipant, error) {
	var participants []model.ConversationParticipant
	err := r.db.Where("conversation_id = ?", conversationID).
		Find(&participants).Error

	return participants, err
}

func (r *conversationRepository) ConversationIDsByUser(userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&model.ConversationParticipant{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error

	return ids, err
}
