package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-chat-service/internal/client"
	"voice-chat-service/internal/database"
	"voice-chat-service/internal/model"
	"voice-chat-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateMessageInput carries the type-specific fields of a new message.
type CreateMessageInput struct {
	Type            string   `json:"type"`
	Text            *string  `json:"text,omitempty"`
	MediaURL        *string  `json:"mediaUrl,omitempty"`
	MediaKind       *string  `json:"mediaKind,omitempty"`
	MediaDurationS  *int     `json:"mediaDurationS,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	LocationAddress *string  `json:"locationAddress,omitempty"`
}

// MessageWire is the normalized message shape used by both the create
// response and the message:new broadcast, so clients append consistently.
type MessageWire struct {
	ID              uuid.UUID             `json:"id"`
	ConversationID  uuid.UUID             `json:"conversationId"`
	SenderID        uuid.UUID             `json:"senderId"`
	Type            model.MessageType     `json:"type"`
	Text            *string               `json:"text,omitempty"`
	MediaURL        *string               `json:"mediaUrl,omitempty"`
	MediaKind       *string               `json:"mediaKind,omitempty"`
	MediaDurationS  *int                  `json:"mediaDurationS,omitempty"`
	Latitude        *float64              `json:"latitude,omitempty"`
	Longitude       *float64              `json:"longitude,omitempty"`
	LocationAddress *string               `json:"locationAddress,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	Status          model.AggregateStatus `json:"status,omitempty"`
}

// ReadReceipt is one recipient's read acknowledgment.
type ReadReceipt struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
	ReadAt   time.Time `json:"readAt"`
}

type MessageService interface {
	Create(ctx context.Context, conversationID, senderID uuid.UUID, input CreateMessageInput) (*MessageWire, error)
	List(ctx context.Context, conversationID, userID uuid.UUID, limit int, cursor string) ([]MessageWire, error)
	MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error
	Delete(ctx context.Context, messageID, userID uuid.UUID) error
	ReadReceipts(ctx context.Context, messageID, userID uuid.UUID) ([]ReadReceipt, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	users       client.UserClient
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	users client.UserClient,
	broadcaster Broadcaster,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		users:       users,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (s *messageService) assertParticipant(conversationID, userID uuid.UUID) error {
	isMember, err := s.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		return fmt.Errorf("membership check failed: %w", err)
	}
	if !isMember {
		return ErrForbidden
	}
	return nil
}

// Create validates, persists the message with one status row per
// participant (sender pre-stamped), and broadcasts message:new.
func (s *messageService) Create(ctx context.Context, conversationID, senderID uuid.UUID, input CreateMessageInput) (*MessageWire, error) {
	if err := s.assertParticipant(conversationID, senderID); err != nil {
		return nil, err
	}

	msgType := model.MessageType(strings.ToUpper(strings.TrimSpace(input.Type)))
	switch msgType {
	case model.MessageTypeText:
		if input.Text == nil || strings.TrimSpace(*input.Text) == "" {
			return nil, fmt.Errorf("%w: text is required", ErrValidation)
		}
	case model.MessageTypeImage, model.MessageTypeVoice:
		if input.MediaURL == nil || *input.MediaURL == "" {
			return nil, fmt.Errorf("%w: mediaUrl is required", ErrValidation)
		}
	case model.MessageTypeLocation:
		if input.Latitude == nil || input.Longitude == nil {
			return nil, fmt.Errorf("%w: latitude and longitude are required", ErrValidation)
		}
	case model.MessageTypeSystem:
		return nil, fmt.Errorf("%w: SYSTEM messages cannot be sent by clients", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unsupported message type", ErrValidation)
	}

	message := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		MessageType:    msgType,
	}
	switch msgType {
	case model.MessageTypeText:
		trimmed := strings.TrimSpace(*input.Text)
		message.Text = &trimmed
	case model.MessageTypeImage, model.MessageTypeVoice:
		message.MediaURL = input.MediaURL
		message.MediaDurationS = input.MediaDurationS
		kind := "image"
		if msgType == model.MessageTypeVoice {
			kind = "audio"
		}
		if input.MediaKind != nil {
			kind = *input.MediaKind
		}
		message.MediaKind = &kind
	case model.MessageTypeLocation:
		message.Latitude = input.Latitude
		message.Longitude = input.Longitude
		message.LocationAddress = input.LocationAddress
	}

	participants, err := s.convRepo.GetParticipants(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	participantIDs := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		participantIDs = append(participantIDs, p.UserID)
	}

	if err := s.messageRepo.CreateWithStatuses(message, participantIDs); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	wire := toWire(message)
	wire.Status = model.AggregateStatusSent

	s.publish(ctx, conversationID, Envelope(EventMessageNew, wire))

	return &wire, nil
}

// List returns messages oldest-first. The aggregate status is attached only
// to the caller's own messages and recomputed per fetch.
func (s *messageService) List(ctx context.Context, conversationID, userID uuid.UUID, limit int, cursor string) ([]MessageWire, error) {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 30
	}
	if limit > 100 {
		limit = 100
	}

	var before *time.Time
	if cursor != "" {
		cursorID, err := uuid.Parse(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid cursor", ErrValidation)
		}
		anchor, err := s.messageRepo.GetByID(cursorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: cursor message", ErrNotFound)
			}
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
		before = &anchor.CreatedAt
	}

	messages, err := s.messageRepo.ListByConversation(conversationID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	wires := make([]MessageWire, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		wire := toWire(&m)
		if m.SenderID == userID {
			wire.Status = model.RollupStatus(m.Statuses, m.SenderID)
		}
		wires = append(wires, wire)
	}

	return wires, nil
}

// MarkDelivered stamps the caller's delivered timestamp; repeated calls are
// monotonic no-ops.
func (s *messageService) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get message: %w", err)
	}
	if err := s.assertParticipant(message.ConversationID, userID); err != nil {
		return err
	}

	return s.messageRepo.MarkDelivered(messageID, userID)
}

// MarkRead stamps readAt (and deliveredAt if missing). Reading your own
// message is a no-op success.
func (s *messageService) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get message: %w", err)
	}
	if err := s.assertParticipant(message.ConversationID, userID); err != nil {
		return err
	}

	if message.SenderID == userID {
		return nil
	}

	return s.messageRepo.MarkRead(messageID, userID)
}

// Delete removes a message for everyone. Sender only.
func (s *messageService) Delete(ctx context.Context, messageID, userID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get message: %w", err)
	}
	if message.SenderID != userID {
		return ErrForbidden
	}
	if err := s.assertParticipant(message.ConversationID, userID); err != nil {
		return err
	}

	if err := s.messageRepo.Delete(messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	s.publish(ctx, message.ConversationID, Envelope(EventMessageDeleted, map[string]interface{}{
		"messageId": messageID,
	}))

	return nil
}

func (s *messageService) ReadReceipts(ctx context.Context, messageID, userID uuid.UUID) ([]ReadReceipt, error) {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if err := s.assertParticipant(message.ConversationID, userID); err != nil {
		return nil, err
	}

	statuses, err := s.messageRepo.ReadReceipts(messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list read receipts: %w", err)
	}

	receipts := make([]ReadReceipt, 0, len(statuses))
	for _, st := range statuses {
		receipts = append(receipts, ReadReceipt{
			UserID:   st.UserID,
			UserName: s.resolveName(ctx, st.UserID),
			ReadAt:   *st.ReadAt,
		})
	}
	return receipts, nil
}

// publish fans a message event out through the Redis conversation channel;
// when Redis is down it falls back to the in-process room broadcast so a
// single-node deployment keeps working.
func (s *messageService) publish(ctx context.Context, conversationID uuid.UUID, payload []byte) {
	if payload == nil {
		return
	}
	if err := database.PublishConversationEvent(ctx, conversationID.String(), payload); err != nil {
		s.logger.Debug("redis publish failed, using local broadcast",
			zap.String("conversationId", conversationID.String()),
			zap.Error(err))
		s.broadcaster.BroadcastToConversation(conversationID, payload)
	}
}

func (s *messageService) resolveName(ctx context.Context, userID uuid.UUID) string {
	info, err := s.users.GetUserInfo(ctx, userID.String())
	if err != nil {
		return "Unknown"
	}
	return info.NickName
}

func toWire(m *model.Message) MessageWire {
	return MessageWire{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		Type:            m.MessageType,
		Text:            m.Text,
		MediaURL:        m.MediaURL,
		MediaKind:       m.MediaKind,
		MediaDurationS:  m.MediaDurationS,
		Latitude:        m.Latitude,
		Longitude:       m.Longitude,
		LocationAddress: m.LocationAddress,
		CreatedAt:       m.CreatedAt,
	}
}
