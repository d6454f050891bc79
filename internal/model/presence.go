package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// ParsePresenceStatus reports whether s names a valid status.
func ParsePresenceStatus(s string) (PresenceStatus, bool) {
	switch PresenceStatus(strings.ToLower(strings.TrimSpace(s))) {
	case PresenceOnline:
		return PresenceOnline, true
	case PresenceAway:
		return PresenceAway, true
	case PresenceBusy:
		return PresenceBusy, true
	case PresenceOffline:
		return PresenceOffline, true
	}
	return "", false
}

// CoerceHereStatus maps a client-supplied status to the enum. Anything
// unparseable becomes "online", the documented default for a client that is
// announcing itself.
func CoerceHereStatus(s string) PresenceStatus {
	if st, ok := ParsePresenceStatus(s); ok {
		return st
	}
	return PresenceOnline
}

// CoerceBoolStatus maps boolean-style input ("true"/"false"/"1"/"0") to
// online/offline. Anything unparseable becomes "offline".
func CoerceBoolStatus(s string) PresenceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return PresenceOnline
	}
	return PresenceOffline
}

// PresenceState is the in-memory presence entry for one (conversation, user)
// pair. Never persisted; the tracker owns it.
type PresenceState struct {
	UserID   uuid.UUID
	Status   PresenceStatus
	LastSeen time.Time
}

// Online reports whether the state counts as live for bulk snapshots.
func (s PresenceState) Online() bool {
	return s.Status != PresenceOffline
}
