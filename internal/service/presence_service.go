package service

import (
	"context"
	"sync"
	"time"

	"voice-chat-service/internal/middleware"
	"voice-chat-service/internal/model"
	"voice-chat-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PresenceUpdate is the payload of a presence:update event.
type PresenceUpdate struct {
	ConversationID uuid.UUID            `json:"conversationId"`
	UserID         uuid.UUID            `json:"userId"`
	Status         model.PresenceStatus `json:"status"`
	LastActiveAt   time.Time            `json:"lastActiveAt"`
}

// PresenceEntry is one user's state inside a presence:bulk snapshot.
type PresenceEntry struct {
	UserID       uuid.UUID            `json:"userId"`
	Status       model.PresenceStatus `json:"status"`
	LastActiveAt time.Time            `json:"lastActiveAt"`
}

// BulkSnapshot is the full per-conversation snapshot sent on subscribe.
type BulkSnapshot struct {
	ConversationID uuid.UUID       `json:"conversationId"`
	States         []PresenceEntry `json:"states"`
}

// UserPresenceSummary is the cross-conversation shape for presence:request_bulk.
type UserPresenceSummary struct {
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// PresenceService keeps the ephemeral who-is-online state per conversation.
// All maps are in-memory only; the persistent store is consulted solely for
// membership checks. Each map is guarded by the single mutex; handlers that
// await a store round-trip re-acquire it afterwards, accepting
// last-write-wins on lastSeen.
type PresenceService struct {
	convRepo    repository.ConversationRepository
	broadcaster Broadcaster
	logger      *zap.Logger

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu sync.RWMutex
	// conversationID -> userID -> state
	presence map[uuid.UUID]map[uuid.UUID]*model.PresenceState
	// conversationID -> connIDs that explicitly subscribed
	subscribers map[uuid.UUID]map[uuid.UUID]bool
	// connID -> conversationIDs it watches
	watching map[uuid.UUID]map[uuid.UUID]bool
	// userID -> live connIDs
	userConns map[uuid.UUID]map[uuid.UUID]bool
}

func NewPresenceService(
	convRepo repository.ConversationRepository,
	broadcaster Broadcaster,
	logger *zap.Logger,
	ttl, sweepInterval time.Duration,
) *PresenceService {
	return &PresenceService{
		convRepo:      convRepo,
		broadcaster:   broadcaster,
		logger:        logger,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		now:           time.Now,
		presence:      make(map[uuid.UUID]map[uuid.UUID]*model.PresenceState),
		subscribers:   make(map[uuid.UUID]map[uuid.UUID]bool),
		watching:      make(map[uuid.UUID]map[uuid.UUID]bool),
		userConns:     make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

// Connect registers a live connection for the user.
func (s *PresenceService) Connect(connID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userConns[userID] == nil {
		s.userConns[userID] = make(map[uuid.UUID]bool)
	}
	s.userConns[userID][connID] = true
}

// Disconnect removes the connection's watch memberships and, when it was the
// user's last live connection, demotes the user to offline in every watched
// conversation immediately. TTL catches the cases a watch-set misses.
func (s *PresenceService) Disconnect(connID, userID uuid.UUID) {
	s.mu.Lock()

	watched := s.watching[connID]
	for convID := range watched {
		if subs := s.subscribers[convID]; subs != nil {
			delete(subs, connID)
			if len(subs) == 0 {
				delete(s.subscribers, convID)
			}
		}
	}
	delete(s.watching, connID)

	lastConn := false
	if conns := s.userConns[userID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(s.userConns, userID)
			lastConn = true
		}
	}

	var updates []PresenceUpdate
	if lastConn {
		t := s.now()
		for convID := range watched {
			states := s.presence[convID]
			if states == nil {
				continue
			}
			st, ok := states[userID]
			if !ok || st.Status == model.PresenceOffline {
				continue
			}
			st.Status = model.PresenceOffline
			st.LastSeen = t
			updates = append(updates, s.updateFor(convID, st))
		}
	}
	s.mu.Unlock()

	for _, u := range updates {
		s.fanOut(u)
	}
}

// Subscribe adds the connection to the conversation's subscriber set and
// replies with a full snapshot. The TTL check runs synchronously first so the
// snapshot never reports stale "online".
func (s *PresenceService) Subscribe(connID, conversationID uuid.UUID) {
	s.mu.Lock()
	if s.subscribers[conversationID] == nil {
		s.subscribers[conversationID] = make(map[uuid.UUID]bool)
	}
	s.subscribers[conversationID][connID] = true

	if s.watching[connID] == nil {
		s.watching[connID] = make(map[uuid.UUID]bool)
	}
	s.watching[connID][conversationID] = true
	s.mu.Unlock()

	snapshot, demoted := s.snapshotLocked(conversationID)
	s.broadcaster.SendToConn(connID, Envelope(EventPresenceBulk, snapshot))
	for _, u := range demoted {
		s.fanOut(u)
	}
}

// Unsubscribe removes the connection from the conversation's subscriber set.
func (s *PresenceService) Unsubscribe(connID, conversationID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if subs := s.subscribers[conversationID]; subs != nil {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(s.subscribers, conversationID)
		}
	}
	if watched := s.watching[connID]; watched != nil {
		delete(watched, conversationID)
	}
}

// Here marks the caller present in a conversation. Non-members are dropped
// silently; presence is advisory, and a client may legitimately race a
// membership change.
func (s *PresenceService) Here(ctx context.Context, userID, conversationID uuid.UUID, status string) {
	isMember, err := s.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		s.logger.Warn("presence membership check failed",
			zap.String("conversationId", conversationID.String()),
			zap.String("userId", userID.String()),
			zap.Error(err))
		return
	}
	if !isMember {
		return
	}

	update := s.setState(conversationID, userID, model.CoerceHereStatus(status))
	s.fanOut(update)
}

// AnnounceGlobal applies Here to every conversation the user belongs to.
func (s *PresenceService) AnnounceGlobal(ctx context.Context, userID uuid.UUID, status string) {
	convIDs, err := s.convRepo.ConversationIDsByUser(userID)
	if err != nil {
		s.logger.Warn("announce_global conversation lookup failed",
			zap.String("userId", userID.String()),
			zap.Error(err))
		return
	}

	st := model.CoerceHereStatus(status)
	for _, convID := range convIDs {
		update := s.setState(convID, userID, st)
		s.fanOut(update)
	}
}

// Ping refreshes lastSeen without changing status, for every conversation the
// connection watches, or every conversation the user belongs to when nothing
// is explicitly watched. A ping before any Here for a pair is a no-op.
func (s *PresenceService) Ping(ctx context.Context, connID, userID uuid.UUID) {
	s.mu.RLock()
	watched := make([]uuid.UUID, 0, len(s.watching[connID]))
	for convID := range s.watching[connID] {
		watched = append(watched, convID)
	}
	s.mu.RUnlock()

	if len(watched) == 0 {
		convIDs, err := s.convRepo.ConversationIDsByUser(userID)
		if err != nil {
			s.logger.Warn("ping conversation lookup failed",
				zap.String("userId", userID.String()),
				zap.Error(err))
			return
		}
		s.refreshLastSeen(convIDs, userID, true)
		return
	}
	s.refreshLastSeen(watched, userID, false)
}

// RequestBulk sends the caller a cross-conversation summary of everyone they
// share a conversation with, keyed by user id, self excluded.
func (s *PresenceService) RequestBulk(ctx context.Context, connID, userID uuid.UUID) {
	convIDs, err := s.convRepo.ConversationIDsByUser(userID)
	if err != nil {
		s.logger.Warn("request_bulk conversation lookup failed",
			zap.String("userId", userID.String()),
			zap.Error(err))
		return
	}

	summary := make(map[string]UserPresenceSummary)
	s.mu.RLock()
	for _, convID := range convIDs {
		for uid, st := range s.presence[convID] {
			if uid == userID {
				continue
			}
			summary[uid.String()] = UserPresenceSummary{
				IsOnline: st.Online(),
				LastSeen: st.LastSeen,
			}
		}
	}
	s.mu.RUnlock()

	s.broadcaster.SendToConn(connID, Envelope(EventPresenceBulk, summary))
}

// Snapshot returns the conversation's presence list for the HTTP surface,
// applying the TTL check synchronously so stale "online" is never reported.
func (s *PresenceService) Snapshot(conversationID uuid.UUID) []PresenceEntry {
	snapshot, demoted := s.snapshotLocked(conversationID)
	for _, u := range demoted {
		s.fanOut(u)
	}
	return snapshot.States
}

// StartSweeper runs the fixed-interval TTL sweep until ctx is done. The
// sweep is the sole detector of silent disconnects.
func (s *PresenceService) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// sweep demotes every entry whose lastSeen aged past the TTL. lastSeen is
// re-read at decision time under the lock, so a ping racing the sweep
// suppresses the demotion.
func (s *PresenceService) sweep() {
	t := s.now()

	s.mu.Lock()
	var updates []PresenceUpdate
	for convID, states := range s.presence {
		for _, st := range states {
			if st.Status == model.PresenceOffline {
				continue
			}
			if t.Sub(st.LastSeen) <= s.ttl {
				continue
			}
			st.Status = model.PresenceOffline
			updates = append(updates, s.updateFor(convID, st))
		}
	}
	s.mu.Unlock()

	if len(updates) > 0 {
		s.logger.Info("presence sweep demoted stale entries",
			zap.Int("count", len(updates)))
	}
	for _, u := range updates {
		middleware.RecordPresenceSweepEviction()
		s.fanOut(u)
	}
}

func (s *PresenceService) setState(conversationID, userID uuid.UUID, status model.PresenceStatus) PresenceUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := s.presence[conversationID]
	if states == nil {
		states = make(map[uuid.UUID]*model.PresenceState)
		s.presence[conversationID] = states
	}

	st, ok := states[userID]
	if !ok {
		st = &model.PresenceState{UserID: userID}
		states[userID] = st
	}
	st.Status = status
	st.LastSeen = s.now()

	return s.updateFor(conversationID, st)
}

func (s *PresenceService) refreshLastSeen(convIDs []uuid.UUID, userID uuid.UUID, skipOffline bool) {
	t := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, convID := range convIDs {
		states := s.presence[convID]
		if states == nil {
			continue
		}
		st, ok := states[userID]
		if !ok {
			continue
		}
		if skipOffline && st.Status == model.PresenceOffline {
			continue
		}
		st.LastSeen = t
	}
}

// snapshotLocked demotes stale entries for one conversation and returns the
// snapshot plus the demotions still to be fanned out by the caller.
func (s *PresenceService) snapshotLocked(conversationID uuid.UUID) (BulkSnapshot, []PresenceUpdate) {
	t := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var demoted []PresenceUpdate
	states := s.presence[conversationID]
	entries := make([]PresenceEntry, 0, len(states))
	for _, st := range states {
		if st.Status != model.PresenceOffline && t.Sub(st.LastSeen) > s.ttl {
			st.Status = model.PresenceOffline
			demoted = append(demoted, s.updateFor(conversationID, st))
		}
		entries = append(entries, PresenceEntry{
			UserID:       st.UserID,
			Status:       st.Status,
			LastActiveAt: st.LastSeen,
		})
	}

	return BulkSnapshot{ConversationID: conversationID, States: entries}, demoted
}

func (s *PresenceService) updateFor(conversationID uuid.UUID, st *model.PresenceState) PresenceUpdate {
	return PresenceUpdate{
		ConversationID: conversationID,
		UserID:         st.UserID,
		Status:         st.Status,
		LastActiveAt:   st.LastSeen,
	}
}

// fanOut delivers an update to the conversation's explicit subscribers and
// to its broadcast room. The duplication is intentional redundancy against
// missed subscribe calls; receivers de-duplicate by
// (conversationId, userId, lastActiveAt).
func (s *PresenceService) fanOut(update PresenceUpdate) {
	middleware.RecordPresenceUpdate(string(update.Status))
	payload := Envelope(EventPresenceUpdate, update)

	s.mu.RLock()
	conns := make([]uuid.UUID, 0, len(s.subscribers[update.ConversationID]))
	for connID := range s.subscribers[update.ConversationID] {
		conns = append(conns, connID)
	}
	s.mu.RUnlock()

	s.broadcaster.SendToConns(conns, payload)
	s.broadcaster.BroadcastToConversation(update.ConversationID, payload)
}
