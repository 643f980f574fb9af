// Package call implements the call-session establishment protocol and
// the closed-loop quality adaptation for real-time audio calls over a
// managed media-relay network.
//
// # Components
//
//   - Coordinator: the establishment protocol. Acquires a short-lived
//     channel credential, joins the media channel muted, dispatches an
//     out-of-band invitation, and rendezvous-waits for the remote
//     party with a bounded timeout.
//   - QualityController: maps observed link grades and packet-loss
//     telemetry to encoder profiles, on a periodic cadence and on
//     event triggers.
//   - ReconnectionSupervisor: watches connection-state transitions and
//     drives re-adaptation around reconnect windows; terminal failures
//     are surfaced to the coordinator, which owns remediation.
//   - Session: the aggregate root of one call attempt.
//
// The controller and supervisor run continuously, subscribed to the
// same event bus as the coordinator but independent of its lifecycle.
//
// # Concurrency
//
// One logical session exists per coordinator; Start while not idle
// fails fast with ErrAlreadyInSession. Every timer and goroutine of a
// call attempt is owned by its session runtime and cancelled as a
// unit on any terminal transition, so a late timer can never mutate a
// subsequent session.
//
// # Usage
//
//	bus := rtc.NewBus()
//	adapter, _ := rtc.NewAdapter(engine, bus)
//	session := call.NewSession()
//	coord, _ := call.NewCoordinator(cfg, adapter, bus, session,
//	    gateway.NewCredentialClient(cfg.CredentialURL, cfg.GatewayTimeout),
//	    gateway.NewInvitationClient(cfg.InvitationURL, cfg.InvitationAuthToken, cfg.GatewayTimeout))
//
//	outcome, err := coord.Start(ctx, "friend-42", true)
//	switch outcome {
//	case call.OutcomeJoined:
//	case call.OutcomeNoAnswer:
//	case call.OutcomePermissionDenied:
//	case call.OutcomeConnectionFailed:
//	}
package call
