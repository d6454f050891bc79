package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-chat-service/internal/client"
	"voice-chat-service/internal/model"
	"voice-chat-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ParticipantInfo is a voice participant with the display name resolved
// through the user service.
type ParticipantInfo struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"userId"`
	UserName    string     `json:"userName"`
	Muted       bool       `json:"muted"`
	IsListening bool       `json:"isListening"`
	JoinedAt    time.Time  `json:"joinedAt"`
	LastSeenAt  time.Time  `json:"lastSeenAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`
}

// RoomDetail is the get-or-create response: the room plus its active
// participants.
type RoomDetail struct {
	ID               uuid.UUID         `json:"id"`
	ConversationID   uuid.UUID         `json:"conversationId"`
	IsLive           bool              `json:"isLive"`
	CreatedAt        time.Time         `json:"createdAt"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []ParticipantInfo `json:"participants"`
}

// TransmissionInfo is the wire shape of one utterance.
type TransmissionInfo struct {
	ID        uuid.UUID `json:"id"`
	AudioURL  string    `json:"audioUrl"`
	DurationS *int      `json:"durationS,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    Listener  `json:"sender"`
}

// Listener identifies one active participant at transmit time.
type Listener struct {
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
}

type VoiceService interface {
	GetOrCreateRoom(ctx context.Context, conversationID, userID uuid.UUID) (*RoomDetail, error)
	Join(ctx context.Context, conversationID, userID uuid.UUID) (*ParticipantInfo, error)
	Leave(ctx context.Context, conversationID, userID uuid.UUID) error
	Transmit(ctx context.Context, conversationID, userID uuid.UUID, audioURL string, durationS *int) (*TransmissionInfo, error)
	MarkPlayed(ctx context.Context, conversationID, userID, transmissionID uuid.UUID) error
	Heartbeat(ctx context.Context, conversationID, userID uuid.UUID) error
}

type voiceService struct {
	voiceRepo   repository.VoiceRepository
	convRepo    repository.ConversationRepository
	users       client.UserClient
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewVoiceService(
	voiceRepo repository.VoiceRepository,
	convRepo repository.ConversationRepository,
	users client.UserClient,
	broadcaster Broadcaster,
	logger *zap.Logger,
) VoiceService {
	return &voiceService{
		voiceRepo:   voiceRepo,
		convRepo:    convRepo,
		users:       users,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (s *voiceService) assertParticipant(conversationID, userID uuid.UUID) error {
	isMember, err := s.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		return fmt.Errorf("membership check failed: %w", err)
	}
	if !isMember {
		return ErrForbidden
	}
	return nil
}

func (s *voiceService) GetOrCreateRoom(ctx context.Context, conversationID, userID uuid.UUID) (*RoomDetail, error) {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return nil, err
	}

	room, err := s.voiceRepo.GetOrCreateRoom(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get voice room: %w", err)
	}

	participants, err := s.voiceRepo.ActiveParticipants(room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	infos := make([]ParticipantInfo, 0, len(participants))
	for _, p := range participants {
		infos = append(infos, s.participantInfo(ctx, &p))
	}

	return &RoomDetail{
		ID:               room.ID,
		ConversationID:   room.ConversationID,
		IsLive:           room.IsLive,
		CreatedAt:        room.CreatedAt,
		ParticipantCount: len(infos),
		Participants:     infos,
	}, nil
}

// Join upserts the caller to active. Repeated joins reset leftAt instead of
// duplicating the row.
func (s *voiceService) Join(ctx context.Context, conversationID, userID uuid.UUID) (*ParticipantInfo, error) {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return nil, err
	}

	room, err := s.voiceRepo.GetOrCreateRoom(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get voice room: %w", err)
	}

	participant, err := s.voiceRepo.UpsertParticipant(room.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice room: %w", err)
	}

	info := s.participantInfo(ctx, participant)

	s.broadcaster.BroadcastToConversation(conversationID, Envelope(EventVoiceParticipantJoined, map[string]interface{}{
		"conversationId": conversationID,
		"roomId":         room.ID,
		"participant":    info,
	}))

	return &info, nil
}

// Leave marks the active row left. Leaving while not joined is a no-op
// success; only an actual transition is broadcast.
func (s *voiceService) Leave(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return err
	}

	room, err := s.voiceRepo.GetRoomByConversation(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get voice room: %w", err)
	}

	affected, err := s.voiceRepo.LeaveParticipant(room.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to leave voice room: %w", err)
	}

	if affected > 0 {
		s.broadcaster.BroadcastToConversation(conversationID, Envelope(EventVoiceParticipantLeft, map[string]interface{}{
			"conversationId": conversationID,
			"roomId":         room.ID,
			"userId":         userID,
		}))
	}

	return nil
}

// Transmit persists one utterance and broadcasts it with the listener list
// captured now, not re-queried at delivery. The sender must hold an active
// participant row; membership alone is not enough.
func (s *voiceService) Transmit(ctx context.Context, conversationID, userID uuid.UUID, audioURL string, durationS *int) (*TransmissionInfo, error) {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return nil, err
	}

	if audioURL == "" {
		return nil, fmt.Errorf("%w: audioUrl is required", ErrValidation)
	}

	room, err := s.voiceRepo.GetRoomByConversation(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get voice room: %w", err)
	}

	if _, err := s.voiceRepo.FindActiveParticipant(room.ID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: join the voice room before transmitting", ErrForbidden)
		}
		return nil, fmt.Errorf("failed to check participant: %w", err)
	}

	// Listener snapshot at transmit time. Sender included so their client can
	// confirm playback.
	active, err := s.voiceRepo.ActiveParticipants(room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot listeners: %w", err)
	}
	listeners := make([]Listener, 0, len(active))
	for _, p := range active {
		if !p.IsListening {
			continue
		}
		listeners = append(listeners, Listener{
			UserID:   p.UserID,
			UserName: s.resolveName(ctx, p.UserID),
		})
	}

	transmission := &model.VoiceTransmission{
		RoomID:    room.ID,
		SenderID:  userID,
		AudioURL:  audioURL,
		DurationS: durationS,
	}
	if err := s.voiceRepo.CreateTransmission(transmission); err != nil {
		return nil, fmt.Errorf("failed to create transmission: %w", err)
	}

	info := &TransmissionInfo{
		ID:        transmission.ID,
		AudioURL:  transmission.AudioURL,
		DurationS: transmission.DurationS,
		CreatedAt: transmission.CreatedAt,
		Sender: Listener{
			UserID:   userID,
			UserName: s.resolveName(ctx, userID),
		},
	}

	s.broadcaster.BroadcastToConversation(conversationID, Envelope(EventVoiceTransmission, map[string]interface{}{
		"conversationId": conversationID,
		"roomId":         room.ID,
		"transmission":   info,
		"listeners":      listeners,
	}))

	s.logger.Info("voice transmission broadcast",
		zap.String("conversationId", conversationID.String()),
		zap.String("transmissionId", transmission.ID.String()),
		zap.Int("listeners", len(listeners)))

	return info, nil
}

// MarkPlayed records a playback ack idempotently.
func (s *voiceService) MarkPlayed(ctx context.Context, conversationID, userID, transmissionID uuid.UUID) error {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return err
	}

	transmission, err := s.voiceRepo.GetTransmission(transmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get transmission: %w", err)
	}

	room, err := s.voiceRepo.GetRoomByConversation(conversationID)
	if err != nil || room.ID != transmission.RoomID {
		return ErrNotFound
	}

	return s.voiceRepo.UpsertPlayback(transmissionID, userID)
}

// Heartbeat refreshes lastSeenAt on the active row. There is no TTL sweep
// for voice participants; stale rows persist until an explicit leave.
func (s *voiceService) Heartbeat(ctx context.Context, conversationID, userID uuid.UUID) error {
	if err := s.assertParticipant(conversationID, userID); err != nil {
		return err
	}

	room, err := s.voiceRepo.GetRoomByConversation(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get voice room: %w", err)
	}

	return s.voiceRepo.TouchParticipant(room.ID, userID)
}

func (s *voiceService) participantInfo(ctx context.Context, p *model.VoiceParticipant) ParticipantInfo {
	return ParticipantInfo{
		ID:          p.ID,
		UserID:      p.UserID,
		UserName:    s.resolveName(ctx, p.UserID),
		Muted:       p.Muted,
		IsListening: p.IsListening,
		JoinedAt:    p.JoinedAt,
		LastSeenAt:  p.LastSeenAt,
		LeftAt:      p.LeftAt,
	}
}

func (s *voiceService) resolveName(ctx context.Context, userID uuid.UUID) string {
	info, err := s.users.GetUserInfo(ctx, userID.String())
	if err != nil {
		s.logger.Debug("failed to resolve user name",
			zap.String("userId", userID.String()),
			zap.Error(err))
		return "Unknown"
	}
	return info.NickName
}
