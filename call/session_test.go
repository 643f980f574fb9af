package call

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/rtc"
)

func TestSessionStateString(t *testing.T) {
	tests := []struct {
		state    SessionState
		expected string
	}{
		{StateIdle, "idle"},
		{StateInitializing, "initializing"},
		{StateJoining, "joining"},
		{StateAwaitingPeer, "awaiting_peer"},
		{StateActive, "active"},
		{StateLeaving, "leaving"},
		{StateFailed, "failed"},
		{SessionState(99), "invalid(99)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}

func TestSessionRemoteSetExcludesLocal(t *testing.T) {
	s := NewSession()
	s.markJoined("chan-1", 42, true)

	assert.False(t, s.AddRemote(42), "local uid must be filtered")
	assert.False(t, s.HasRemote())

	assert.True(t, s.AddRemote(7))
	assert.True(t, s.AddRemote(9))
	assert.True(t, s.HasRemote())

	for _, uid := range s.RemoteUIDs() {
		assert.NotEqual(t, s.LocalUID(), uid)
	}
}

func TestSessionRemoteUIDsSorted(t *testing.T) {
	s := NewSession()
	s.markJoined("chan-1", 1, true)

	s.AddRemote(30)
	s.AddRemote(10)
	s.AddRemote(20)

	assert.Equal(t, []uint32{10, 20, 30}, s.RemoteUIDs())

	s.RemoveRemote(20)
	assert.Equal(t, []uint32{10, 30}, s.RemoteUIDs())
}

func TestSessionMarkJoinedDefaults(t *testing.T) {
	s := NewSession()
	s.markJoined("chan-1", 42, true)

	assert.Equal(t, "chan-1", s.ChannelID())
	assert.Equal(t, uint32(42), s.LocalUID())
	assert.True(t, s.Joined())
	assert.True(t, s.MicEnabled())
	assert.True(t, s.MicMuted(), "post-join state is muted")
	assert.False(t, s.Speakerphone())
}

func TestSessionReset(t *testing.T) {
	s := NewSession()
	s.setState(StateActive)
	s.markJoined("chan-1", 42, true)
	s.AddRemote(7)
	s.setGrade(rtc.GradeBad)
	s.setMicMuted(false)
	s.setSpeakerphone(true)

	s.Reset()

	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.Joined())
	assert.Equal(t, uint32(0), s.LocalUID())
	assert.False(t, s.HasRemote())
	assert.Equal(t, rtc.GradeUnknown, s.Grade())
	assert.False(t, s.MicMuted())
	assert.False(t, s.Speakerphone())
}
