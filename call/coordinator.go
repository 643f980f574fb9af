package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/gateway"
	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/rtc"
)

// Outcome is the user-facing result of a call attempt. Internal error
// codes are never shown directly to end users; the embedding
// application surfaces exactly one of these.
type Outcome int

const (
	// OutcomeJoined indicates the call was established
	OutcomeJoined Outcome = iota
	// OutcomeNoAnswer indicates the remote party never joined
	OutcomeNoAnswer
	// OutcomeConnectionFailed indicates an establishment failure
	OutcomeConnectionFailed
	// OutcomePermissionDenied indicates the microphone permission was
	// refused
	OutcomePermissionDenied
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeJoined:
		return "joined"
	case OutcomeNoAnswer:
		return "no_answer"
	case OutcomeConnectionFailed:
		return "connection_failed"
	case OutcomePermissionDenied:
		return "permission_denied"
	default:
		return fmt.Sprintf("invalid(%d)", int(o))
	}
}

// mediaAdapter is the slice of rtc.Adapter the coordinator drives.
type mediaAdapter interface {
	Initialize(appID string) error
	Reinitialize(appID string) error
	Join(token, channelID string, uid uint32, enableAudio bool) error
	Leave() error
	SetMuted(muted bool) error
	SetSpeakerphone(enabled bool) error
	SetVolume(volume int) error
}

// credentialFetcher issues short-lived channel credentials.
type credentialFetcher interface {
	Fetch(ctx context.Context, accountID string) (gateway.Credentials, error)
}

// invitationNotifier delivers the out-of-band call invitation.
type invitationNotifier interface {
	Notify(ctx context.Context, channelID, receiverID, senderID string, timestampMs int64) error
}

// rendezvous is a single-resolution future. Two independent producers
// (the event pump and the poll) race to complete it; the second
// resolution is a benign no-op.
type rendezvous struct {
	once sync.Once
	ch   chan struct{}
}

func newRendezvous() *rendezvous {
	return &rendezvous{ch: make(chan struct{})}
}

func (r *rendezvous) resolve() {
	r.once.Do(func() { close(r.ch) })
}

func (r *rendezvous) done() <-chan struct{} {
	return r.ch
}

// sessionRuntime bundles everything owned by one call attempt: its
// context (cancelling it cancels every timer and the event pump as a
// unit), its bus subscription, and its rendezvous future. A new
// runtime is built per Start/Answer, so late timers from a previous
// attempt can never mutate a subsequent session.
type sessionRuntime struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	events <-chan rtc.Event
	unsub  func()

	meet     *rendezvous
	pumpDone chan struct{}

	finishOnce sync.Once
	finished   chan struct{}
}

// Coordinator owns the call-establishment protocol: credential
// acquisition, channel join, invitation dispatch, and the rendezvous
// wait for the remote party.
//
// A single logical session exists per coordinator. Start while a
// session is in progress fails fast with ErrAlreadyInSession rather
// than queuing. Stop is safe from any state, including concurrently
// with an in-flight Start, in which case it cancels the pending
// rendezvous and its timers before returning.
type Coordinator struct {
	mu sync.Mutex

	cfg     Config
	adapter mediaAdapter
	bus     *rtc.Bus
	session *Session
	creds   credentialFetcher
	invites invitationNotifier
	tp      TimeProvider

	generation uint64
	current    *sessionRuntime
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(cfg Config, adapter mediaAdapter, bus *rtc.Bus, session *Session, creds credentialFetcher, invites invitationNotifier) (*Coordinator, error) {
	if adapter == nil {
		return nil, errors.New("media adapter cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if creds == nil {
		return nil, errors.New("credential fetcher cannot be nil")
	}
	if invites == nil {
		return nil, errors.New("invitation notifier cannot be nil")
	}

	def := DefaultConfig()
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = def.GatewayTimeout
	}
	if cfg.RendezvousTimeout <= 0 {
		cfg.RendezvousTimeout = def.RendezvousTimeout
	}
	if cfg.RendezvousPoll <= 0 {
		cfg.RendezvousPoll = def.RendezvousPoll
	}

	logrus.WithFields(logrus.Fields{
		"function":           "NewCoordinator",
		"rendezvous_timeout": cfg.RendezvousTimeout,
		"rendezvous_poll":    cfg.RendezvousPoll,
	}).Debug("Session coordinator created")

	return &Coordinator{
		cfg:     cfg,
		adapter: adapter,
		bus:     bus,
		session: session,
		creds:   creds,
		invites: invites,
	}, nil
}

// SetTimeProvider injects a clock for deterministic testing.
func (c *Coordinator) SetTimeProvider(tp TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tp = tp
}

// Session exposes the coordinator's session aggregate.
func (c *Coordinator) Session() *Session {
	return c.session
}

// Start runs the call-establishment protocol towards targetUserID:
// engine readiness, credential acquisition, channel join (with one
// re-initialize-and-retry), invitation dispatch, and the rendezvous
// wait. It suspends until the call is established, fails, or is
// stopped.
//
// enableAudio controls whether the local stream is unmuted once the
// call is established; the post-join state is always muted.
func (c *Coordinator) Start(ctx context.Context, targetUserID string, enableAudio bool) (Outcome, error) {
	rt, err := c.begin(ctx)
	if err != nil {
		return OutcomeConnectionFailed, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Start",
		"target_id": targetUserID,
		"audio":     enableAudio,
		"session":   rt.gen,
	}).Info("Starting call attempt")

	if err := c.adapter.Initialize(c.cfg.AppID); err != nil {
		c.session.setState(StateFailed)
		c.finish(rt)
		if rtc.IsPermissionDenied(err) {
			return OutcomePermissionDenied, err
		}
		return OutcomeConnectionFailed, err
	}

	creds, err := c.creds.Fetch(rt.ctx, c.cfg.AccountID)
	if err != nil {
		c.session.setState(StateFailed)
		stopped := rt.ctx.Err() != nil
		c.finish(rt)
		if stopped {
			return OutcomeConnectionFailed, ErrStopped
		}
		return OutcomeConnectionFailed, err
	}

	c.session.setState(StateJoining)
	if err := c.join(creds, enableAudio); err != nil {
		c.session.setState(StateFailed)
		c.finish(rt)
		return OutcomeConnectionFailed, err
	}

	c.session.markJoined(creds.ChannelID, creds.UID, enableAudio)
	c.session.setState(StateAwaitingPeer)

	c.dispatchInvitation(creds.ChannelID, targetUserID)

	return c.awaitPeer(rt, enableAudio)
}

// Answer joins the channel named by a received invitation. Expired
// invitations are dropped without touching the engine and are never
// auto-joined.
func (c *Coordinator) Answer(ctx context.Context, inv gateway.InvitationPayload, enableAudio bool) (Outcome, error) {
	if inv.Expired(c.timeProvider().Now()) {
		logrus.WithFields(logrus.Fields{
			"function":     "Answer",
			"channel_id":   inv.ChannelID,
			"sender_id":    inv.SenderID,
			"issued_at_ms": inv.IssuedAtMs,
		}).Warn("Dropping expired invitation")
		return OutcomeConnectionFailed, gateway.ErrInvitationExpired
	}

	rt, err := c.begin(ctx)
	if err != nil {
		return OutcomeConnectionFailed, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Answer",
		"channel_id": inv.ChannelID,
		"sender_id":  inv.SenderID,
		"session":    rt.gen,
	}).Info("Answering call invitation")

	if err := c.adapter.Initialize(c.cfg.AppID); err != nil {
		c.session.setState(StateFailed)
		c.finish(rt)
		if rtc.IsPermissionDenied(err) {
			return OutcomePermissionDenied, err
		}
		return OutcomeConnectionFailed, err
	}

	creds := gateway.Credentials{
		Token:     inv.Token,
		ChannelID: inv.ChannelID,
		UID:       inv.AssignedUID,
	}

	c.session.setState(StateJoining)
	if err := c.join(creds, enableAudio); err != nil {
		c.session.setState(StateFailed)
		c.finish(rt)
		return OutcomeConnectionFailed, err
	}

	c.session.markJoined(creds.ChannelID, creds.UID, enableAudio)
	c.session.setState(StateAwaitingPeer)

	// The answering side dispatches no invitation; the caller should
	// already be in the channel, which the entry check picks up.
	return c.awaitPeer(rt, enableAudio)
}

// Stop tears the session down from any state. With a Start or Answer
// in flight it cancels the pending rendezvous and all session timers
// before returning; with an active call it leaves the channel.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	rt := c.current
	c.mu.Unlock()

	if rt == nil {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
		"state":    c.session.State().String(),
		"session":  rt.gen,
	}).Info("Stopping session")

	c.finish(rt)
	return nil
}

// HandleConnectionFailure is the remediation hook for the
// reconnection supervisor: on a terminal engine connection failure
// the coordinator leaves the channel and resets the session.
func (c *Coordinator) HandleConnectionFailure(reason int) {
	logrus.WithFields(logrus.Fields{
		"function": "HandleConnectionFailure",
		"reason":   reason,
	}).Error("Terminal connection failure reported, tearing session down")

	if err := c.Stop(context.Background()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleConnectionFailure",
			"error":    err.Error(),
		}).Warn("Teardown after connection failure reported an error")
	}
}

// SetMuted toggles the local stream mute state of a joined session.
func (c *Coordinator) SetMuted(muted bool) error {
	if !c.session.Joined() {
		return ErrNotInSession
	}
	if err := c.adapter.SetMuted(muted); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SetMuted",
			"muted":    muted,
			"error":    err.Error(),
		}).Warn("Mute toggle failed")
		return err
	}
	c.session.setMicMuted(muted)
	return nil
}

// SetSpeakerphone toggles loudspeaker routing of a joined session.
func (c *Coordinator) SetSpeakerphone(enabled bool) error {
	if !c.session.Joined() {
		return ErrNotInSession
	}
	if err := c.adapter.SetSpeakerphone(enabled); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SetSpeakerphone",
			"enabled":  enabled,
			"error":    err.Error(),
		}).Warn("Speakerphone toggle failed")
		return err
	}
	c.session.setSpeakerphone(enabled)
	return nil
}

// SetVolume adjusts playback volume of a joined session.
func (c *Coordinator) SetVolume(volume int) error {
	if !c.session.Joined() {
		return ErrNotInSession
	}
	return c.adapter.SetVolume(volume)
}

// begin claims the single session slot and builds the runtime. The
// event subscription is attached here, before the join, so a peer
// arriving during the join is never missed.
func (c *Coordinator) begin(ctx context.Context) (*sessionRuntime, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil || c.session.State() != StateIdle {
		logrus.WithFields(logrus.Fields{
			"function": "begin",
			"state":    c.session.State().String(),
		}).Warn("Rejecting call attempt, session not idle")
		return nil, ErrAlreadyInSession
	}

	c.generation++
	sctx, cancel := context.WithCancel(ctx)
	events, unsub := c.bus.Subscribe()

	rt := &sessionRuntime{
		gen:      c.generation,
		ctx:      sctx,
		cancel:   cancel,
		events:   events,
		unsub:    unsub,
		meet:     newRendezvous(),
		pumpDone: make(chan struct{}),
		finished: make(chan struct{}),
	}
	c.current = rt
	c.session.setState(StateInitializing)

	go c.pump(rt)

	return rt, nil
}

// pump applies bus events to the session for the runtime's lifetime.
func (c *Coordinator) pump(rt *sessionRuntime) {
	defer close(rt.pumpDone)

	for {
		select {
		case <-rt.ctx.Done():
			return
		case ev, ok := <-rt.events:
			if !ok {
				return
			}
			c.handleEvent(rt, ev)
		}
	}
}

// handleEvent mutates the session from a bus event. Events belonging
// to a torn-down runtime are discarded so they cannot touch a
// subsequent session.
func (c *Coordinator) handleEvent(rt *sessionRuntime, ev rtc.Event) {
	c.mu.Lock()
	stale := c.current != rt
	c.mu.Unlock()
	if stale {
		return
	}

	switch e := ev.(type) {
	case rtc.PeerJoined:
		if c.session.AddRemote(e.UID) {
			logrus.WithFields(logrus.Fields{
				"function": "handleEvent",
				"uid":      e.UID,
			}).Info("Remote peer joined channel")
			rt.meet.resolve()
		}
	case rtc.PeerLeft:
		c.session.RemoveRemote(e.UID)
		logrus.WithFields(logrus.Fields{
			"function": "handleEvent",
			"uid":      e.UID,
			"reason":   e.Reason,
		}).Info("Remote peer left channel")
	case rtc.JoinSucceeded:
		logrus.WithFields(logrus.Fields{
			"function":   "handleEvent",
			"channel_id": e.ChannelID,
			"local_uid":  e.LocalUID,
			"elapsed_ms": e.ElapsedMs,
		}).Debug("Engine confirmed channel join")
	case rtc.LeftChannel:
		logrus.WithFields(logrus.Fields{
			"function":   "handleEvent",
			"channel_id": e.ChannelID,
		}).Debug("Engine confirmed channel leave")
	}
}

// join performs the channel join with exactly one full
// re-initialization retry before giving up.
func (c *Coordinator) join(creds gateway.Credentials, enableAudio bool) error {
	err := c.adapter.Join(creds.Token, creds.ChannelID, creds.UID, enableAudio)
	if err == nil {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":   "join",
		"channel_id": creds.ChannelID,
		"error":      err.Error(),
	}).Warn("Channel join failed, reinitializing engine for single retry")

	if rerr := c.adapter.Reinitialize(c.cfg.AppID); rerr != nil {
		return fmt.Errorf("%w: reinitialization failed: %v", ErrJoinFailed, rerr)
	}
	if err := c.adapter.Join(creds.Token, creds.ChannelID, creds.UID, enableAudio); err != nil {
		return fmt.Errorf("%w: retry failed: %v", ErrJoinFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "join",
		"channel_id": creds.ChannelID,
	}).Info("Channel join retry succeeded")

	return nil
}

// dispatchInvitation notifies the target as a detached task: its
// failure is logged and never blocks or fails the rendezvous.
func (c *Coordinator) dispatchInvitation(channelID, receiverID string) {
	issuedAt := c.timeProvider().Now().UnixMilli()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.GatewayTimeout)
		defer cancel()

		if err := c.invites.Notify(ctx, channelID, receiverID, c.cfg.AccountID, issuedAt); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "dispatchInvitation",
				"channel_id":  channelID,
				"receiver_id": receiverID,
				"error":       err.Error(),
			}).Warn("Invitation delivery failed, continuing rendezvous")
		}
	}()
}

// awaitPeer blocks until the rendezvous resolves, times out, or the
// session is stopped. Resolution is fed by three independent signals:
// the entry check of already-present remotes (covers a peer that
// joined before the watcher attached), the event pump, and a
// low-frequency poll as defensive redundancy against missed events.
// Whichever observes a qualifying peer first wins.
func (c *Coordinator) awaitPeer(rt *sessionRuntime, enableAudio bool) (Outcome, error) {
	if c.session.HasRemote() {
		rt.meet.resolve()
	}

	tp := c.timeProvider()
	timeout := tp.NewTimer(c.cfg.RendezvousTimeout)
	defer timeout.Stop()
	poll := tp.NewTicker(c.cfg.RendezvousPoll)
	defer poll.Stop()

	for {
		select {
		case <-rt.meet.done():
			return c.establish(rt, enableAudio)

		case <-poll.C:
			if c.session.HasRemote() {
				rt.meet.resolve()
			}

		case <-timeout.C:
			logrus.WithFields(logrus.Fields{
				"function":   "awaitPeer",
				"channel_id": c.session.ChannelID(),
				"timeout":    c.cfg.RendezvousTimeout,
			}).Warn("Rendezvous timed out, leaving channel")
			c.session.setState(StateFailed)
			// The channel must be left before the failure surfaces; a
			// given-up session must never look active to the engine.
			c.finish(rt)
			return OutcomeNoAnswer, ErrRendezvousTimeout

		case <-rt.ctx.Done():
			c.finish(rt)
			return OutcomeConnectionFailed, ErrStopped
		}
	}
}

// establish finalizes a successful rendezvous: the session becomes
// active and, if the call was started with audio, the local stream is
// unmuted. An unmute failure is absorbed; the call is healthy.
func (c *Coordinator) establish(rt *sessionRuntime, enableAudio bool) (Outcome, error) {
	// A concurrent Stop may have won the race against the rendezvous;
	// in that case the stop takes precedence.
	c.mu.Lock()
	if c.current != rt {
		c.mu.Unlock()
		c.finish(rt)
		return OutcomeConnectionFailed, ErrStopped
	}
	c.mu.Unlock()

	c.session.setState(StateActive)

	if enableAudio {
		if err := c.adapter.SetMuted(false); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "establish",
				"error":    err.Error(),
			}).Warn("Unmute after rendezvous failed")
		} else {
			c.session.setMicMuted(false)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "establish",
		"channel_id": c.session.ChannelID(),
		"remotes":    c.session.RemoteUIDs(),
	}).Info("Call established")

	return OutcomeJoined, nil
}

// finish tears a runtime down exactly once: releases the session
// slot, cancels every timer and the pump as a unit, leaves the
// channel if joined, and resets the session to idle. Concurrent
// callers block until the teardown completes.
func (c *Coordinator) finish(rt *sessionRuntime) {
	rt.finishOnce.Do(func() {
		defer close(rt.finished)

		c.mu.Lock()
		if c.current == rt {
			c.current = nil
		}
		c.mu.Unlock()

		rt.cancel()
		rt.unsub()
		<-rt.pumpDone

		if c.session.Joined() {
			c.session.setState(StateLeaving)
			if err := c.adapter.Leave(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "finish",
					"error":    err.Error(),
				}).Warn("Channel leave during teardown failed")
			}
		}

		c.session.Reset()

		logrus.WithFields(logrus.Fields{
			"function": "finish",
			"session":  rt.gen,
		}).Debug("Session torn down")
	})

	<-rt.finished
}

// timeProvider returns the injected clock or the system clock.
func (c *Coordinator) timeProvider() TimeProvider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return getTimeProvider(c.tp)
}
