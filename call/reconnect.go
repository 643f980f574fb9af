package call

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/rtc"
)

// ReconnectionSupervisor watches connection-state transitions and
// drives re-adaptation around reconnect windows.
//
// The supervisor only detects: on a terminal connection failure it
// invokes the registered callback and leaves remediation (leave or
// retry) to the session coordinator.
type ReconnectionSupervisor struct {
	mu sync.Mutex

	bus        *rtc.Bus
	controller *QualityController
	onFailure  func(reason int)

	reconnecting bool

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewReconnectionSupervisor creates a supervisor over the given bus
// and controller. onFailure may be nil; it is invoked on terminal
// connection failure.
func NewReconnectionSupervisor(bus *rtc.Bus, controller *QualityController, onFailure func(reason int)) (*ReconnectionSupervisor, error) {
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	if controller == nil {
		return nil, errors.New("quality controller cannot be nil")
	}

	return &ReconnectionSupervisor{
		bus:        bus,
		controller: controller,
		onFailure:  onFailure,
	}, nil
}

// Start subscribes to the event bus and launches the watch loop.
func (rs *ReconnectionSupervisor) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.running {
		return errors.New("reconnection supervisor already running")
	}

	events, unsub := rs.bus.Subscribe()
	rs.stop = make(chan struct{})
	rs.done = make(chan struct{})
	rs.running = true

	go rs.run(events, unsub)

	logrus.WithFields(logrus.Fields{
		"function": "Start",
	}).Info("Reconnection supervisor started")

	return nil
}

// Stop terminates the watch loop and waits for it to exit.
func (rs *ReconnectionSupervisor) Stop() {
	rs.mu.Lock()
	if !rs.running {
		rs.mu.Unlock()
		return
	}
	rs.running = false
	close(rs.stop)
	done := rs.done
	rs.mu.Unlock()

	<-done

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("Reconnection supervisor stopped")
}

func (rs *ReconnectionSupervisor) run(events <-chan rtc.Event, unsub func()) {
	defer close(rs.done)
	defer unsub()

	for {
		select {
		case <-rs.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if sc, isState := ev.(rtc.ConnectionStateChanged); isState {
				rs.handleStateChange(sc)
			}
		}
	}
}

// handleStateChange drives the Connected -> Reconnecting ->
// {Connected, Failed} machine.
func (rs *ReconnectionSupervisor) handleStateChange(ev rtc.ConnectionStateChanged) {
	logrus.WithFields(logrus.Fields{
		"function": "handleStateChange",
		"state":    ev.State.String(),
		"reason":   ev.Reason,
	}).Debug("Connection state changed")

	switch ev.State {
	case rtc.ConnectionReconnecting:
		rs.mu.Lock()
		rs.reconnecting = true
		rs.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "handleStateChange",
			"reason":   ev.Reason,
		}).Warn("Engine reconnecting, applying worst-case profile")
		rs.controller.ApplyWorstCase()

	case rtc.ConnectionConnected:
		rs.mu.Lock()
		wasReconnecting := rs.reconnecting
		rs.reconnecting = false
		rs.mu.Unlock()

		if wasReconnecting {
			// Recompute from the latest known grade; the link coming
			// back says nothing about its quality.
			logrus.WithFields(logrus.Fields{
				"function": "handleStateChange",
			}).Info("Reconnected, reapplying profile from latest grade")
			rs.controller.Reapply()
		}

	case rtc.ConnectionFailed:
		rs.mu.Lock()
		rs.reconnecting = false
		cb := rs.onFailure
		rs.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "handleStateChange",
			"reason":   ev.Reason,
		}).Error("Connection terminally failed")

		if cb != nil {
			cb(ev.Reason)
		}
	}
}

// Reconnecting reports whether a reconnect episode is in progress.
func (rs *ReconnectionSupervisor) Reconnecting() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.reconnecting
}
