package service

import (
	"context"
	"testing"
	"time"

	"voice-chat-service/internal/model"
	"voice-chat-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type messageFixture struct {
	db    *gorm.DB
	svc   MessageService
	bc    *fakeBroadcaster
	users *fakeUserClient
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	db := setupTestDB(t)
	bc := newFakeBroadcaster()
	users := &fakeUserClient{names: map[string]string{}}
	svc := NewMessageService(
		repository.NewMessageRepository(db),
		repository.NewConversationRepository(db),
		users,
		bc,
		zap.NewNop(),
	)
	return &messageFixture{db: db, svc: svc, bc: bc, users: users}
}

func strPtr(s string) *string { return &s }

func TestCreate_TextMessage(t *testing.T) {
	f := newMessageFixture(t)
	sender, recipient := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, sender, recipient)

	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type: "TEXT",
		Text: strPtr("  hello  "),
	})
	require.NoError(t, err)
	assert.Equal(t, model.AggregateStatusSent, msg.Status)
	assert.Equal(t, "hello", *msg.Text)

	// sender's status row is pre-stamped, the recipient's is blank
	var statuses []model.MessageStatus
	require.NoError(t, f.db.Where("message_id = ?", msg.ID).Find(&statuses).Error)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		if st.UserID == sender {
			assert.NotNil(t, st.DeliveredAt)
			assert.NotNil(t, st.ReadAt)
		} else {
			assert.Nil(t, st.DeliveredAt)
			assert.Nil(t, st.ReadAt)
		}
	}

	// without Redis the fan-out falls back to the in-process room
	payloads := f.bc.roomPayloads(convID)
	require.Len(t, payloads, 1)
	event, _ := decodeEnvelope(t, payloads[0])
	assert.Equal(t, EventMessageNew, event)
}

func TestCreate_Validation(t *testing.T) {
	f := newMessageFixture(t)
	sender := uuid.New()
	convID := seedConversation(t, f.db, sender)

	cases := []struct {
		name  string
		input CreateMessageInput
	}{
		{"text without body", CreateMessageInput{Type: "TEXT"}},
		{"text with only whitespace", CreateMessageInput{Type: "TEXT", Text: strPtr("   ")}},
		{"image without media url", CreateMessageInput{Type: "IMAGE"}},
		{"voice without media url", CreateMessageInput{Type: "VOICE"}},
		{"location without coordinates", CreateMessageInput{Type: "LOCATION"}},
		{"system from client", CreateMessageInput{Type: "SYSTEM", Text: strPtr("x")}},
		{"unknown type", CreateMessageInput{Type: "CARRIER_PIGEON"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), convID, sender, tc.input)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreate_NonMemberForbidden(t *testing.T) {
	f := newMessageFixture(t)
	convID := seedConversation(t, f.db, uuid.New())

	_, err := f.svc.Create(context.Background(), convID, uuid.New(), CreateMessageInput{
		Type: "TEXT",
		Text: strPtr("hi"),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreate_VoiceMessageDefaultsMediaKind(t *testing.T) {
	f := newMessageFixture(t)
	sender := uuid.New()
	convID := seedConversation(t, f.db, sender)

	durationS := 3
	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type:           "voice",
		MediaURL:       strPtr("https://cdn.example.com/note.ogg"),
		MediaDurationS: &durationS,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeVoice, msg.Type)
	assert.Equal(t, "audio", *msg.MediaKind)
	assert.Equal(t, 3, *msg.MediaDurationS)
}

func TestMarkRead_AdvancesRollupToSeen(t *testing.T) {
	f := newMessageFixture(t)
	sender, recipient := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, sender, recipient)

	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type: "TEXT",
		Text: strPtr("ping"),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(context.Background(), msg.ID, recipient))

	// read implies delivered
	var st model.MessageStatus
	require.NoError(t, f.db.First(&st, "message_id = ? AND user_id = ?", msg.ID, recipient).Error)
	assert.NotNil(t, st.DeliveredAt)
	assert.NotNil(t, st.ReadAt)

	list, err := f.svc.List(context.Background(), convID, sender, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.AggregateStatusSeen, list[0].Status)
}

func TestMarkDelivered_Monotonic(t *testing.T) {
	f := newMessageFixture(t)
	sender, recipient := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, sender, recipient)

	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type: "TEXT",
		Text: strPtr("ping"),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkDelivered(context.Background(), msg.ID, recipient))

	var first model.MessageStatus
	require.NoError(t, f.db.First(&first, "message_id = ? AND user_id = ?", msg.ID, recipient).Error)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, f.svc.MarkDelivered(context.Background(), msg.ID, recipient))

	var second model.MessageStatus
	require.NoError(t, f.db.First(&second, "message_id = ? AND user_id = ?", msg.ID, recipient).Error)
	assert.True(t, second.DeliveredAt.Equal(*first.DeliveredAt))

	list, err := f.svc.List(context.Background(), convID, sender, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.AggregateStatusDelivered, list[0].Status)
}

func TestMarkRead_BySenderIsNoop(t *testing.T) {
	f := newMessageFixture(t)
	sender := uuid.New()
	convID := seedConversation(t, f.db, sender)

	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type: "TEXT",
		Text: strPtr("talking to myself"),
	})
	require.NoError(t, err)

	assert.NoError(t, f.svc.MarkRead(context.Background(), msg.ID, sender))
}

func TestList_CursorPagination(t *testing.T) {
	f := newMessageFixture(t)
	sender := uuid.New()
	convID := seedConversation(t, f.db, sender)

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
			Type: "TEXT",
			Text: strPtr("msg"),
		})
		require.NoError(t, err)
		ids = append(ids, msg.ID)
		time.Sleep(2 * time.Millisecond)
	}

	// newest page first, returned oldest-first
	page, err := f.svc.List(context.Background(), convID, sender, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[4], page[1].ID)

	// cursor walks backwards from the oldest message of the previous page
	page, err = f.svc.List(context.Background(), convID, sender, 2, page[0].ID.String())
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}

func TestList_StatusOnlyOnOwnMessages(t *testing.T) {
	f := newMessageFixture(t)
	userA, userB := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, userA, userB)

	_, err := f.svc.Create(context.Background(), convID, userA, CreateMessageInput{
		Type: "TEXT", Text: strPtr("from A"),
	})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.Create(context.Background(), convID, userB, CreateMessageInput{
		Type: "TEXT", Text: strPtr("from B"),
	})
	require.NoError(t, err)

	list, err := f.svc.List(context.Background(), convID, userB, 10, "")
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Empty(t, list[0].Status) // A's message, not the caller's
	assert.Equal(t, model.AggregateStatusSent, list[1].Status)
}

func TestList_InvalidCursor(t *testing.T) {
	f := newMessageFixture(t)
	sender := uuid.New()
	convID := seedConversation(t, f.db, sender)

	_, err := f.svc.List(context.Background(), convID, sender, 10, "not-a-uuid")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.List(context.Background(), convID, sender, 10, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_SenderOnly(t *testing.T) {
	f := newMessageFixture(t)
	sender, other := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, sender, other)

	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type: "TEXT", Text: strPtr("oops"),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(context.Background(), msg.ID, other), ErrForbidden)

	require.NoError(t, f.svc.Delete(context.Background(), msg.ID, sender))

	var msgCount, statusCount int64
	require.NoError(t, f.db.Model(&model.Message{}).Where("id = ?", msg.ID).Count(&msgCount).Error)
	require.NoError(t, f.db.Model(&model.MessageStatus{}).Where("message_id = ?", msg.ID).Count(&statusCount).Error)
	assert.Zero(t, msgCount)
	assert.Zero(t, statusCount)

	payloads := f.bc.roomPayloads(convID)
	event, _ := decodeEnvelope(t, payloads[len(payloads)-1])
	assert.Equal(t, EventMessageDeleted, event)
}

func TestDelete_MissingMessageNotFound(t *testing.T) {
	f := newMessageFixture(t)
	assert.ErrorIs(t, f.svc.Delete(context.Background(), uuid.New(), uuid.New()), ErrNotFound)
}

func TestReadReceipts(t *testing.T) {
	f := newMessageFixture(t)
	sender, reader := uuid.New(), uuid.New()
	convID := seedConversation(t, f.db, sender, reader)
	f.users.names[reader.String()] = "Jamie"

	msg, err := f.svc.Create(context.Background(), convID, sender, CreateMessageInput{
		Type: "TEXT", Text: strPtr("read me"),
	})
	require.NoError(t, err)

	receipts, err := f.svc.ReadReceipts(context.Background(), msg.ID, sender)
	require.NoError(t, err)
	// the sender's pre-stamped read is a receipt too
	require.Len(t, receipts, 1)
	assert.Equal(t, sender, receipts[0].UserID)

	require.NoError(t, f.svc.MarkRead(context.Background(), msg.ID, reader))

	receipts, err = f.svc.ReadReceipts(context.Background(), msg.ID, sender)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, "Jamie", receipts[1].UserName)
}
