package call

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/rtc"
)

// SessionState is the establishment-protocol state of a call attempt.
type SessionState int

const (
	// StateIdle indicates no call attempt in progress
	StateIdle SessionState = iota
	// StateInitializing indicates the engine is being prepared and
	// credentials are being fetched
	StateInitializing
	// StateJoining indicates a channel join is in flight
	StateJoining
	// StateAwaitingPeer indicates the channel is joined and the
	// rendezvous wait for the remote peer is running
	StateAwaitingPeer
	// StateActive indicates the call is established
	StateActive
	// StateLeaving indicates the channel is being left
	StateLeaving
	// StateFailed indicates the establishment protocol gave up
	StateFailed
)

// String returns the human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateJoining:
		return "joining"
	case StateAwaitingPeer:
		return "awaiting_peer"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// Session is the aggregate root of a call attempt. It is created on
// Start, mutated by event handlers throughout the call, and reset on
// leave or terminal failure.
//
// All accessors are safe for concurrent use; the event pump, the
// rendezvous poll, and user-facing control methods touch it from
// different goroutines.
type Session struct {
	mu sync.RWMutex

	state      SessionState
	channelID  string
	localUID   uint32
	remoteUIDs map[uint32]struct{}

	micEnabled   bool
	micMuted     bool
	speakerphone bool

	grade rtc.NetworkGrade
}

// NewSession creates an idle, empty session.
func NewSession() *Session {
	return &Session{
		state:      StateIdle,
		remoteUIDs: make(map[uint32]struct{}),
	}
}

// State returns the current protocol state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState updates the protocol state.
func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()

	if old != state {
		logrus.WithFields(logrus.Fields{
			"function":  "setState",
			"old_state": old.String(),
			"new_state": state.String(),
		}).Debug("Session state transition")
	}
}

// ChannelID returns the joined channel id, empty when not joined.
func (s *Session) ChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelID
}

// LocalUID returns the credential-assigned local participant id.
func (s *Session) LocalUID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localUID
}

// Joined reports whether a channel is currently joined.
func (s *Session) Joined() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelID != ""
}

// markJoined records the channel identity after a successful join.
func (s *Session) markJoined(channelID string, localUID uint32, micEnabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelID = channelID
	s.localUID = localUID
	s.micEnabled = micEnabled
	s.micMuted = true
}

// AddRemote records a remote participant. The local uid is filtered so
// the remote set never contains the local participant; the return
// value reports whether a qualifying peer was actually added.
func (s *Session) AddRemote(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uid == s.localUID {
		logrus.WithFields(logrus.Fields{
			"function": "AddRemote",
			"uid":      uid,
		}).Debug("Ignoring join event for local participant")
		return false
	}

	s.remoteUIDs[uid] = struct{}{}
	return true
}

// RemoveRemote drops a remote participant from the set.
func (s *Session) RemoveRemote(uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remoteUIDs, uid)
}

// HasRemote reports whether any remote participant is present.
func (s *Session) HasRemote() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.remoteUIDs) > 0
}

// RemoteUIDs returns the remote participant ids in ascending order.
func (s *Session) RemoteUIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uids := lo.Keys(s.remoteUIDs)
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Grade returns the last observed network grade.
func (s *Session) Grade() rtc.NetworkGrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grade
}

// setGrade records the latest network grade.
func (s *Session) setGrade(grade rtc.NetworkGrade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grade = grade
}

// MicMuted reports whether the local stream is muted.
func (s *Session) MicMuted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.micMuted
}

// setMicMuted records the local mute flag.
func (s *Session) setMicMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.micMuted = muted
}

// MicEnabled reports whether the call was started with audio enabled.
func (s *Session) MicEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.micEnabled
}

// Speakerphone reports whether loudspeaker routing is active.
func (s *Session) Speakerphone() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speakerphone
}

// setSpeakerphone records the loudspeaker routing flag.
func (s *Session) setSpeakerphone(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakerphone = enabled
}

// Reset clears the session back to idle and empty. Called on leave and
// on terminal failure.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateIdle
	s.channelID = ""
	s.localUID = 0
	s.remoteUIDs = make(map[uint32]struct{})
	s.micEnabled = false
	s.micMuted = false
	s.speakerphone = false
	s.grade = rtc.GradeUnknown
}
