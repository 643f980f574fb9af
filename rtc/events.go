package rtc

import "fmt"

// ConnectionState represents the engine's view of the channel link.
// The numeric values match the engine's wire representation.
type ConnectionState int

const (
	// ConnectionDisconnected indicates no channel connection
	ConnectionDisconnected ConnectionState = iota + 1
	// ConnectionConnecting indicates a connection attempt in progress
	ConnectionConnecting
	// ConnectionConnected indicates an established channel connection
	ConnectionConnected
	// ConnectionReconnecting indicates the engine lost the link and is
	// re-establishing it on its own
	ConnectionReconnecting
	// ConnectionFailed indicates the engine gave up on the link
	ConnectionFailed
)

// String returns the human-readable connection state name.
func (s ConnectionState) String() string {
	switch s {
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionReconnecting:
		return "reconnecting"
	case ConnectionFailed:
		return "failed"
	default:
		return fmt.Sprintf("invalid(%d)", int(s))
	}
}

// LocalAudioState reports the local capture/encoding pipeline state.
type LocalAudioState int

const (
	// LocalAudioStopped indicates local capture is stopped
	LocalAudioStopped LocalAudioState = iota
	// LocalAudioRecording indicates local capture is running
	LocalAudioRecording
	// LocalAudioEncoding indicates frames are being encoded and sent
	LocalAudioEncoding
	// LocalAudioFailed indicates the local pipeline failed
	LocalAudioFailed
)

// Event is the tagged union carried by the Bus. Every engine callback
// is translated into exactly one Event value; consumers type-switch on
// the concrete variants below.
type Event interface {
	// Kind returns a stable short name for logging and metrics.
	Kind() string
}

// PeerJoined is emitted when a remote participant enters the channel.
type PeerJoined struct {
	UID       uint32
	ElapsedMs int
}

// Kind implements Event.
func (PeerJoined) Kind() string { return "peer_joined" }

// PeerLeft is emitted when a remote participant leaves the channel.
type PeerLeft struct {
	UID    uint32
	Reason int
}

// Kind implements Event.
func (PeerLeft) Kind() string { return "peer_left" }

// JoinSucceeded is emitted after the local participant joins a channel.
type JoinSucceeded struct {
	ChannelID string
	LocalUID  uint32
	ElapsedMs int
}

// Kind implements Event.
func (JoinSucceeded) Kind() string { return "join_succeeded" }

// LeftChannel is emitted after the local participant leaves a channel.
type LeftChannel struct {
	ChannelID string
}

// Kind implements Event.
func (LeftChannel) Kind() string { return "left_channel" }

// ConnectionStateChanged is emitted on every engine link transition.
type ConnectionStateChanged struct {
	State  ConnectionState
	Reason int
}

// Kind implements Event.
func (ConnectionStateChanged) Kind() string { return "connection_state_changed" }

// QualitySample carries the periodic per-participant link grades.
type QualitySample struct {
	UID      uint32
	Uplink   NetworkGrade
	Downlink NetworkGrade
}

// Kind implements Event.
func (QualitySample) Kind() string { return "quality_sample" }

// Grade returns the worse of the two directional grades.
func (q QualitySample) Grade() NetworkGrade {
	return WorstGrade(q.Uplink, q.Downlink)
}

// StatsSample carries the periodic channel statistics report.
type StatsSample struct {
	DurationS int
	TxLossPct float64
	RxLossPct float64
}

// Kind implements Event.
func (StatsSample) Kind() string { return "stats_sample" }

// LocalAudioStateChanged reports local capture pipeline transitions.
type LocalAudioStateChanged struct {
	State LocalAudioState
	Err   int
}

// Kind implements Event.
func (LocalAudioStateChanged) Kind() string { return "local_audio_state_changed" }
