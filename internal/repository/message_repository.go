// internal/repository/message_repository.go
package repository

import (
	"time"

	"voice-chat-service/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository interface {
	// CreateWithStatuses inserts the message and one status row per
	// participant in a single transaction. The sender's row is pre-stamped
	// delivered+read.
	CreateWithStatuses(message *model.Message, participantIDs []uuid.UUID) error
	GetByID(messageID uuid.UUID) (*model.Message, error)
	ListByConversation(conversationID uuid.UUID, limit int, before *time.Time) ([]model.Message, error)
	Delete(messageID uuid.UUID) error

	MarkDelivered(messageID, userID uuid.UUID) error
	MarkRead(messageID, userID uuid.UUID) error
	StatusesByMessage(messageID uuid.UUID) ([]model.MessageStatus, error)
	ReadReceipts(messageID uuid.UUID) ([]model.MessageStatus, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateWithStatuses(message *model.Message, participantIDs []uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}

		now := time.Now()
		statuses := make([]model.MessageStatus, 0, len(participantIDs))
		for _, userID := range participantIDs {
			status := model.MessageStatus{
				MessageID: message.ID,
				UserID:    userID,
			}
			if userID == message.SenderID {
				t := now
				status.DeliveredAt = &t
				status.ReadAt = &t
			}
			statuses = append(statuses, status)
		}

		if len(statuses) == 0 {
			return nil
		}
		return tx.Create(&statuses).Error
	})
}

func (r *messageRepository) GetByID(messageID uuid.UUID) (*model.Message, error) {
	var message model.Message
	err := r.db.Preload("Statuses").
		First(&message, "id = ?", messageID).Error

	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) ListByConversation(conversationID uuid.UUID, limit int, before *time.Time) ([]model.Message, error) {
	var messages []model.Message
	query := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Preload("Statuses")

	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	err := query.Find(&messages).Error
	return messages, err
}

func (r *messageRepository) Delete(messageID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).
			Delete(&model.MessageStatus{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Message{}, "id = ?", messageID).Error
	})
}

// MarkDelivered stamps deliveredAt once. A second call matches zero rows,
// which keeps the timestamp monotonic.
func (r *messageRepository) MarkDelivered(messageID, userID uuid.UUID) error {
	return r.db.Model(&model.MessageStatus{}).
		Where("message_id = ? AND user_id = ? AND delivered_at IS NULL", messageID, userID).
		Update("delivered_at", time.Now()).Error
}

// MarkRead stamps readAt, and deliveredAt too when the delivered ack was
// never received. Already-set timestamps are left untouched.
func (r *messageRepository) MarkRead(messageID, userID uuid.UUID) error {
	now := time.Now()

	err := r.db.Model(&model.MessageStatus{}).
		Where("message_id = ? AND user_id = ? AND read_at IS NULL", messageID, userID).
		Update("read_at", now).Error
	if err != nil {
		return err
	}

	return r.db.Model(&model.MessageStatus{}).
		Where("message_id = ? AND user_id = ? AND delivered_at IS NULL", messageID, userID).
		Update("delivered_at", now).Error
}

func (r *messageRepository) StatusesByMessage(messageID uuid.UUID) ([]model.MessageStatus, error) {
	var statuses []model.MessageStatus
	err := r.db.Where("message_id = ?", messageID).
		Find(&statuses).Error

	return statuses, err
}

func (r *messageRepository) ReadReceipts(messageID uuid.UUID) ([]model.MessageStatus, error) {
	var statuses []model.MessageStatus
	err := r.db.Where("message_id = ? AND read_at IS NOT NULL", messageID).
		Order("read_at ASC").
		Find(&statuses).Error

	return statuses, err
}
