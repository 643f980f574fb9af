package call

import "errors"

// Sentinel errors for call establishment. These enable reliable
// classification with errors.Is by the embedding application.
var (
	// ErrAlreadyInSession indicates Start was called while a session
	// was not idle. Sessions are never queued.
	ErrAlreadyInSession = errors.New("a session is already in progress")

	// ErrJoinFailed indicates the media engine rejected the channel
	// join, including the single re-initialize-and-retry attempt.
	ErrJoinFailed = errors.New("channel join failed")

	// ErrRendezvousTimeout indicates no remote peer arrived within the
	// rendezvous bound. The channel is left before this is surfaced.
	ErrRendezvousTimeout = errors.New("no peer joined within the rendezvous window")

	// ErrStopped indicates the session was stopped locally while the
	// establishment protocol was still in flight.
	ErrStopped = errors.New("session stopped")

	// ErrNotInSession indicates a control operation was attempted with
	// no channel joined.
	ErrNotInSession = errors.New("no session in progress")
)
