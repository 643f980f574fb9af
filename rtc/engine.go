package rtc

import (
	"errors"
	"fmt"
)

// EventHandler is the callback-registration surface of the underlying
// media engine SDK. The SDK invokes these on its own event loop; the
// Adapter installs exactly one handler set per Initialize and turns
// every invocation into a published Event.
//
// Any callback left nil is simply not invoked by conforming engines.
type EventHandler struct {
	OnJoinSuccess            func(channelID string, uid uint32, elapsedMs int)
	OnLeaveChannel           func(channelID string)
	OnUserJoined             func(uid uint32, elapsedMs int)
	OnUserOffline            func(uid uint32, reason int)
	OnConnectionStateChanged func(state ConnectionState, reason int)
	OnNetworkQuality         func(uid uint32, uplink, downlink NetworkGrade)
	OnChannelStats           func(durationS int, txLossPct, rxLossPct float64)
	OnLocalAudioStateChanged func(state LocalAudioState, errCode int)
}

// Engine is the minimal surface the opaque media engine must provide.
// Implementations wrap the vendor SDK; tests substitute a fake. All
// methods are expected to return quickly, with completion reported
// through the installed EventHandler.
type Engine interface {
	// Setup prepares the engine with the application credential and
	// installs the callback handler. Called once per engine lifetime.
	Setup(appID string, handler *EventHandler) error

	// RequestMicrophonePermission acquires the capture permission.
	// A denial is terminal for the engine instance.
	RequestMicrophonePermission() error

	// JoinChannel connects to the channel identified by channelID
	// using a short-lived token and the assigned uid.
	JoinChannel(token, channelID string, uid uint32) error

	// LeaveChannel disconnects from the current channel.
	LeaveChannel() error

	// MuteLocalAudio stops or resumes publishing the local stream.
	MuteLocalAudio(muted bool) error

	// SetSpeakerphone routes playback to the loudspeaker or earpiece.
	SetSpeakerphone(enabled bool) error

	// ApplyEncoderProfile reconfigures the outgoing audio encoder.
	ApplyEncoderProfile(profile EncoderProfile) error

	// AdjustPlaybackVolume sets the playback volume, 0..400 where 100
	// is the original level.
	AdjustPlaybackVolume(volume int) error

	// Release destroys the engine instance. A released engine must be
	// Setup again before reuse.
	Release() error
}

// EngineErrorCode classifies adapter-level failures.
type EngineErrorCode int

const (
	// CodeUnknown is an unclassified engine failure
	CodeUnknown EngineErrorCode = iota
	// CodeNetwork is a transport-level engine failure
	CodeNetwork
	// CodePermission indicates a denied device permission
	CodePermission
	// CodeAlreadyInState indicates a redundant state request
	CodeAlreadyInState
)

// String returns the error code name.
func (c EngineErrorCode) String() string {
	switch c {
	case CodeNetwork:
		return "network"
	case CodePermission:
		return "permission"
	case CodeAlreadyInState:
		return "already_in_state"
	default:
		return "unknown"
	}
}

// EngineError wraps a media engine failure with its classification and
// the adapter operation that observed it.
type EngineError struct {
	Code EngineErrorCode
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("engine %s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying engine error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsPermissionDenied reports whether err is an EngineError carrying
// CodePermission.
func IsPermissionDenied(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == CodePermission
}
