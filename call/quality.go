package call

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/rtc"
)

// profileApplier is the slice of the media adapter the controller
// needs: pushing encoder parameters to the engine.
type profileApplier interface {
	SetEncoderProfile(profile rtc.EncoderProfile) error
}

// QualityController keeps the encoder profile matched to observed
// network conditions.
//
// Two independent triggers recompute the profile: a periodic tick
// (resync after missed events and sustained-but-unreported
// conditions) and the event stream (immediate reaction to grade
// changes and loss spikes). Both derive deterministically from the
// latest samples, so a stale write from one path is corrected by the
// next write from the other.
//
// Engine failures while applying a profile are logged and absorbed; a
// transient encoder-parameter failure must never terminate an
// otherwise healthy call.
type QualityController struct {
	mu sync.RWMutex

	applier profileApplier
	bus     *rtc.Bus
	session *Session
	cfg     Config
	tp      TimeProvider

	grade    rtc.NetworkGrade
	highLoss bool
	// consecutive samples over the loss threshold, for diagnostics
	highLossStreak int

	lastProfile rtc.EncoderProfile
	hasProfile  bool

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewQualityController creates a controller driving applier from the
// events on bus, scoped to the given session.
func NewQualityController(applier profileApplier, bus *rtc.Bus, session *Session, cfg Config) (*QualityController, error) {
	if applier == nil {
		return nil, errors.New("profile applier cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if cfg.AdaptInterval <= 0 {
		cfg.AdaptInterval = DefaultConfig().AdaptInterval
	}
	if cfg.LossEscalationPct <= 0 {
		cfg.LossEscalationPct = DefaultConfig().LossEscalationPct
	}

	return &QualityController{
		applier: applier,
		bus:     bus,
		session: session,
		cfg:     cfg,
		tp:      RealTimeProvider{},
		grade:   rtc.GradeUnknown,
	}, nil
}

// SetTimeProvider injects a clock for deterministic testing.
func (qc *QualityController) SetTimeProvider(tp TimeProvider) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.tp = getTimeProvider(tp)
}

// Start subscribes to the event bus and launches the adaptation loop.
func (qc *QualityController) Start() error {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if qc.running {
		return errors.New("quality controller already running")
	}

	events, unsub := qc.bus.Subscribe()
	qc.stop = make(chan struct{})
	qc.done = make(chan struct{})
	qc.running = true

	go qc.run(events, unsub)

	logrus.WithFields(logrus.Fields{
		"function":       "Start",
		"adapt_interval": qc.cfg.AdaptInterval,
		"loss_threshold": qc.cfg.LossEscalationPct,
	}).Info("Quality controller started")

	return nil
}

// Stop terminates the adaptation loop and waits for it to exit.
func (qc *QualityController) Stop() {
	qc.mu.Lock()
	if !qc.running {
		qc.mu.Unlock()
		return
	}
	qc.running = false
	close(qc.stop)
	done := qc.done
	qc.mu.Unlock()

	<-done

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("Quality controller stopped")
}

// run is the adaptation loop, owning grade and loss state.
func (qc *QualityController) run(events <-chan rtc.Event, unsub func()) {
	defer close(qc.done)
	defer unsub()

	qc.mu.RLock()
	ticker := qc.tp.NewTicker(qc.cfg.AdaptInterval)
	qc.mu.RUnlock()
	defer ticker.Stop()

	for {
		select {
		case <-qc.stop:
			return
		case <-ticker.C:
			qc.onTick()
		case ev, ok := <-events:
			if !ok {
				return
			}
			qc.handleEvent(ev)
		}
	}
}

// onTick re-applies the profile for the current conditions while a
// channel is joined. This resyncs the engine after missed events.
func (qc *QualityController) onTick() {
	if !qc.session.Joined() {
		return
	}
	qc.apply(qc.currentProfile(), "periodic")
}

// handleEvent reacts to quality and stats samples from the engine.
func (qc *QualityController) handleEvent(ev rtc.Event) {
	switch e := ev.(type) {
	case rtc.QualitySample:
		qc.onQualitySample(e)
	case rtc.StatsSample:
		qc.onStatsSample(e)
	}
}

// onQualitySample folds a directional quality sample into the current
// grade: the session's grade is the worst of the sample's uplink and
// downlink. A changed grade recomputes the profile immediately; a
// grade at Bad or worse recomputes immediately even when unchanged,
// independent of the periodic cadence, which is what keeps calls
// alive through transient degradation.
func (qc *QualityController) onQualitySample(sample rtc.QualitySample) {
	newGrade := sample.Grade()

	qc.mu.Lock()
	changed := newGrade != qc.grade
	qc.grade = newGrade
	qc.mu.Unlock()

	qc.session.setGrade(newGrade)

	if changed {
		logrus.WithFields(logrus.Fields{
			"function": "onQualitySample",
			"uid":      sample.UID,
			"uplink":   sample.Uplink.String(),
			"downlink": sample.Downlink.String(),
			"grade":    newGrade.String(),
		}).Info("Network grade changed")
	}

	if changed || newGrade >= rtc.GradeBad {
		qc.apply(qc.currentProfile(), "quality_sample")
	}
}

// onStatsSample watches packet loss in either direction. Loss above
// the escalation threshold latches the loss-escalation profile until
// a later sample comes back under the threshold.
func (qc *QualityController) onStatsSample(sample rtc.StatsSample) {
	loss := sample.TxLossPct
	if sample.RxLossPct > loss {
		loss = sample.RxLossPct
	}

	qc.mu.Lock()
	threshold := qc.cfg.LossEscalationPct
	wasHigh := qc.highLoss
	if loss > threshold {
		qc.highLoss = true
		qc.highLossStreak++
	} else {
		qc.highLoss = false
		qc.highLossStreak = 0
	}
	nowHigh := qc.highLoss
	streak := qc.highLossStreak
	qc.mu.Unlock()

	switch {
	case nowHigh:
		logrus.WithFields(logrus.Fields{
			"function":    "onStatsSample",
			"tx_loss_pct": sample.TxLossPct,
			"rx_loss_pct": sample.RxLossPct,
			"streak":      streak,
		}).Warn("Packet loss above escalation threshold")
		qc.apply(rtc.LossEscalationProfile(), "loss_escalation")
	case wasHigh:
		logrus.WithFields(logrus.Fields{
			"function":    "onStatsSample",
			"tx_loss_pct": sample.TxLossPct,
			"rx_loss_pct": sample.RxLossPct,
		}).Info("Packet loss recovered below threshold")
		qc.apply(qc.currentProfile(), "loss_recovery")
	}
}

// currentProfile derives the profile for the present conditions: the
// loss-escalation profile while the loss latch is set, otherwise the
// grade-table profile.
func (qc *QualityController) currentProfile() rtc.EncoderProfile {
	qc.mu.RLock()
	defer qc.mu.RUnlock()

	if qc.highLoss {
		return rtc.LossEscalationProfile()
	}
	return rtc.ProfileForGrade(qc.grade)
}

// ApplyWorstCase pushes the minimum-viable profile, as if the grade
// were Down. Used by the reconnection supervisor while the engine is
// re-establishing the link.
func (qc *QualityController) ApplyWorstCase() {
	qc.apply(rtc.ProfileForGrade(rtc.GradeDown), "worst_case")
}

// Reapply recomputes the profile from the latest known conditions,
// without assuming they improved.
func (qc *QualityController) Reapply() {
	qc.apply(qc.currentProfile(), "reapply")
}

// Grade returns the controller's current grade.
func (qc *QualityController) Grade() rtc.NetworkGrade {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	return qc.grade
}

// HighLoss reports whether the loss-escalation latch is set.
func (qc *QualityController) HighLoss() bool {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	return qc.highLoss
}

// LastProfile returns the most recently applied profile and whether
// any profile has been applied yet.
func (qc *QualityController) LastProfile() (rtc.EncoderProfile, bool) {
	qc.mu.RLock()
	defer qc.mu.RUnlock()
	return qc.lastProfile, qc.hasProfile
}

// apply pushes a profile to the engine. Failures are logged and
// absorbed; the loop continues on the next trigger.
func (qc *QualityController) apply(profile rtc.EncoderProfile, trigger string) {
	if err := qc.applier.SetEncoderProfile(profile); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "apply",
			"trigger":      trigger,
			"bitrate_kbps": profile.BitrateKbps,
			"error":        err.Error(),
		}).Warn("Encoder profile application failed, will retry on next trigger")
		return
	}

	qc.mu.Lock()
	qc.lastProfile = profile
	qc.hasProfile = true
	qc.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "apply",
		"trigger":      trigger,
		"bitrate_kbps": profile.BitrateKbps,
		"stereo":       profile.Stereo,
		"fec":          profile.FEC,
	}).Debug("Encoder profile applied")
}
