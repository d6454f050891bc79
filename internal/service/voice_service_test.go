package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"voice-chat-service/internal/client"
	"voice-chat-service/internal/model"
	"voice-chat-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeUserClient struct {
	names map[string]string
}

func (f *fakeUserClient) GetUserInfo(ctx context.Context, userID string) (*client.UserInfo, error) {
	if name, ok := f.names[userID]; ok {
		return &client.UserInfo{UserID: userID, NickName: name}, nil
	}
	return nil, errors.New("user not found")
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.MessageStatus{},
		&model.VoiceRoom{},
		&model.VoiceParticipant{},
		&model.VoiceTransmission{},
		&model.VoiceTransmissionPlayback{},
	))
	return db
}

func seedConversation(t *testing.T, db *gorm.DB, userIDs ...uuid.UUID) uuid.UUID {
	t.Helper()
	conv := model.Conversation{ConversationType: model.ConversationTypeGroup}
	require.NoError(t, db.Create(&conv).Error)
	for _, userID := range userIDs {
		require.NoError(t, db.Create(&model.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         userID,
		}).Error)
	}
	return conv.ID
}

type voiceFixture struct {
	db  *gorm.DB
	svc VoiceService
	bc  *fakeBroadcaster
}

func newVoiceFixture(t *testing.T) *voiceFixture {
	t.Helper()
	db := setupTestDB(t)
	bc := newFakeBroadcaster()
	svc := NewVoiceService(
		repository.NewVoiceRepository(db),
		repository.NewConversationRepository(db),
		&fakeUserClient{names: map[string]string{}},
		bc,
		zap.NewNop(),
	)
	return &voiceFixture{db: db, svc: svc, bc: bc}
}

func TestGetOrCreateRoom_CreatesLazily(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	room, err := f.svc.GetOrCreateRoom(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, convID, room.ConversationID)
	assert.True(t, room.IsLive)
	assert.Zero(t, room.ParticipantCount)

	again, err := f.svc.GetOrCreateRoom(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
}

func TestGetOrCreateRoom_NonMemberForbidden(t *testing.T) {
	f := newVoiceFixture(t)
	convID := seedConversation(t, f.db, uuid.New())

	_, err := f.svc.GetOrCreateRoom(context.Background(), convID, uuid.New())
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestJoin_IdempotentSingleActiveRow(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	first, err := f.svc.Join(context.Background(), convID, userID)
	require.NoError(t, err)
	second, err := f.svc.Join(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.db.Model(&model.VoiceParticipant{}).
		Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Nil(t, second.LeftAt)
	assert.True(t, second.IsListening)
}

func TestJoinAfterLeave_ReactivatesSameRow(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	first, err := f.svc.Join(context.Background(), convID, userID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(context.Background(), convID, userID))

	rejoined, err := f.svc.Join(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, rejoined.ID)
	assert.Nil(t, rejoined.LeftAt)

	var count int64
	require.NoError(t, f.db.Model(&model.VoiceParticipant{}).
		Where("user_id = ?", userID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLeave_WhenNotJoined_NoopSuccess(t *testing.T) {
	f := newVoiceFixture(t)
	userA, userB := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, userA, userB)

	_, err := f.svc.Join(context.Background(), convID, userA)
	require.NoError(t, err)
	before := len(f.bc.roomPayloads(convID))

	require.NoError(t, f.svc.Leave(context.Background(), convID, userB))

	// no transition, no broadcast
	assert.Len(t, f.bc.roomPayloads(convID), before)
}

func TestLeave_NoRoom_NotFound(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	assert.ErrorIs(t, f.svc.Leave(context.Background(), convID, userID), ErrNotFound)
}

func TestTransmit_RequiresActiveJoin(t *testing.T) {
	f := newVoiceFixture(t)
	userA, userB := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, userA, userB)

	// A creates the room; B is a member but never joined
	_, err := f.svc.Join(context.Background(), convID, userA)
	require.NoError(t, err)

	_, err = f.svc.Transmit(context.Background(), convID, userB, "https://cdn.example.com/clip.ogg", nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTransmit_EmptyAudioURLRejected(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	_, err := f.svc.Join(context.Background(), convID, userID)
	require.NoError(t, err)

	_, err = f.svc.Transmit(context.Background(), convID, userID, "", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTransmit_SnapshotsListenersAtTransmitTime(t *testing.T) {
	f := newVoiceFixture(t)
	userA, userB := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, userA, userB)

	_, err := f.svc.Join(context.Background(), convID, userA)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), convID, userB)
	require.NoError(t, err)

	durationS := 4
	tx, err := f.svc.Transmit(context.Background(), convID, userA, "https://cdn.example.com/one.ogg", &durationS)
	require.NoError(t, err)
	assert.Equal(t, userA, tx.Sender.UserID)

	payloads := f.bc.roomPayloads(convID)
	event, data := decodeEnvelope(t, payloads[len(payloads)-1])
	require.Equal(t, EventVoiceTransmission, event)

	var body struct {
		Listeners []Listener `json:"listeners"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Len(t, body.Listeners, 2)

	// B leaves; the next transmission only reaches A
	require.NoError(t, f.svc.Leave(context.Background(), convID, userB))
	_, err = f.svc.Transmit(context.Background(), convID, userA, "https://cdn.example.com/two.ogg", nil)
	require.NoError(t, err)

	payloads = f.bc.roomPayloads(convID)
	_, data = decodeEnvelope(t, payloads[len(payloads)-1])
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.Listeners, 1)
	assert.Equal(t, userA, body.Listeners[0].UserID)
}

func TestMarkPlayed_Idempotent(t *testing.T) {
	f := newVoiceFixture(t)
	userA, userB := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, userA, userB)

	_, err := f.svc.Join(context.Background(), convID, userA)
	require.NoError(t, err)
	tx, err := f.svc.Transmit(context.Background(), convID, userA, "https://cdn.example.com/clip.ogg", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkPlayed(context.Background(), convID, userB, tx.ID))
	require.NoError(t, f.svc.MarkPlayed(context.Background(), convID, userB, tx.ID))

	var count int64
	require.NoError(t, f.db.Model(&model.VoiceTransmissionPlayback{}).
		Where("transmission_id = ?", tx.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMarkPlayed_TransmissionFromOtherConversation(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convA := seedConversation(t, f.db, userID)
	convB := seedConversation(t, f.db, userID)

	_, err := f.svc.Join(context.Background(), convA, userID)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), convB, userID)
	require.NoError(t, err)

	tx, err := f.svc.Transmit(context.Background(), convA, userID, "https://cdn.example.com/clip.ogg", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.MarkPlayed(context.Background(), convB, userID, tx.ID), ErrNotFound)
}

func TestHeartbeat_NoRoomIsNoop(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	assert.NoError(t, f.svc.Heartbeat(context.Background(), convID, userID))
}

func TestJoin_BroadcastsParticipantJoined(t *testing.T) {
	f := newVoiceFixture(t)
	userID := uuid.New()
	convID := seedConversation(t, f.db, userID)

	_, err := f.svc.Join(context.Background(), convID, userID)
	require.NoError(t, err)

	payloads := f.bc.roomPayloads(convID)
	require.Len(t, payloads, 1)
	event, _ := decodeEnvelope(t, payloads[0])
	assert.Equal(t, EventVoiceParticipantJoined, event)
}
