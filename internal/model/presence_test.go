package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePresenceStatus(t *testing.T) {
	tests := []struct {
		input string
		want  PresenceStatus
		ok    bool
	}{
		{"online", PresenceOnline, true},
		{"ONLINE", PresenceOnline, true},
		{" away ", PresenceAway, true},
		{"busy", PresenceBusy, true},
		{"offline", PresenceOffline, true},
		{"", "", false},
		{"sleeping", "", false},
	}

	for _, tt := range tests {
		got, ok := ParsePresenceStatus(tt.input)
		assert.Equal(t, tt.ok, ok, "input %q", tt.input)
		if tt.ok {
			assert.Equal(t, tt.want, got, "input %q", tt.input)
		}
	}
}

func TestCoerceHereStatus_DefaultsToOnline(t *testing.T) {
	assert.Equal(t, PresenceAway, CoerceHereStatus("away"))
	assert.Equal(t, PresenceOnline, CoerceHereStatus(""))
	assert.Equal(t, PresenceOnline, CoerceHereStatus("garbage"))
}

func TestCoerceBoolStatus(t *testing.T) {
	assert.Equal(t, PresenceOnline, CoerceBoolStatus("true"))
	assert.Equal(t, PresenceOnline, CoerceBoolStatus("1"))
	assert.Equal(t, PresenceOffline, CoerceBoolStatus("false"))
	assert.Equal(t, PresenceOffline, CoerceBoolStatus(""))
	assert.Equal(t, PresenceOffline, CoerceBoolStatus("garbage"))
}

func TestPresenceState_Online(t *testing.T) {
	st := PresenceState{Status: PresenceBusy, LastSeen: time.Now()}
	assert.True(t, st.Online())

	st.Status = PresenceOffline
	assert.False(t, st.Online())
}
