// Package rtc wraps the opaque real-time media engine behind a small,
// typed capability and fans its callback stream out as events.
//
// The engine SDK exposes one large callback-registration object; this
// package converts that surface into a single tagged event type
// distributed over a multi-subscriber Bus, so the session coordinator,
// the quality controller, and the reconnection supervisor can each
// subscribe independently instead of sharing one monolithic handler.
//
// # Components
//
//   - Engine: the minimal interface the underlying SDK must provide
//   - Adapter: lifecycle wrapper (initialize, join, leave, mute,
//     encoder tuning) that publishes every engine callback as an Event
//   - Bus: replay-free, order-preserving event fan-out
//   - NetworkGrade / EncoderProfile: the quality vocabulary shared
//     with the adaptation loop in package call
//
// # Usage
//
//	bus := rtc.NewBus()
//	adapter, err := rtc.NewAdapter(engine, bus)
//	if err != nil {
//	    // ...
//	}
//	if err := adapter.Initialize(appID); err != nil {
//	    // EngineError with CodePermission means the microphone
//	    // permission was denied; not retried automatically.
//	}
//	events, cancel := bus.Subscribe()
//	defer cancel()
package rtc
