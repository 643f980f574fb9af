package call

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuckBuck-Studios/DuckBuck-AI-Walkie-Talkie-sub002/rtc"
)

// fakeApplier records applied encoder profiles and signals each
// application on a channel so tests can synchronize without sleeping.
type fakeApplier struct {
	mu       sync.Mutex
	profiles []rtc.EncoderProfile
	applied  chan rtc.EncoderProfile
	failNext int
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{applied: make(chan rtc.EncoderProfile, 64)}
}

func (f *fakeApplier) SetEncoderProfile(profile rtc.EncoderProfile) error {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return errors.New("transient engine failure")
	}
	f.profiles = append(f.profiles, profile)
	f.mu.Unlock()

	f.applied <- profile
	return nil
}

func (f *fakeApplier) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

func (f *fakeApplier) waitProfile(t *testing.T) rtc.EncoderProfile {
	t.Helper()
	select {
	case p := <-f.applied:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no encoder profile applied in time")
		return rtc.EncoderProfile{}
	}
}

// quietConfig keeps the periodic tick out of event-driven tests.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.AdaptInterval = time.Hour
	return cfg
}

func newTestController(t *testing.T, cfg Config) (*QualityController, *fakeApplier, *rtc.Bus, *Session) {
	t.Helper()
	applier := newFakeApplier()
	bus := rtc.NewBus()
	t.Cleanup(bus.Close)
	session := NewSession()

	qc, err := NewQualityController(applier, bus, session, cfg)
	require.NoError(t, err)
	require.NoError(t, qc.Start())
	t.Cleanup(qc.Stop)

	return qc, applier, bus, session
}

func TestNewQualityControllerValidation(t *testing.T) {
	bus := rtc.NewBus()
	defer bus.Close()
	session := NewSession()

	_, err := NewQualityController(nil, bus, session, DefaultConfig())
	assert.Error(t, err)
	_, err = NewQualityController(newFakeApplier(), nil, session, DefaultConfig())
	assert.Error(t, err)
	_, err = NewQualityController(newFakeApplier(), bus, nil, DefaultConfig())
	assert.Error(t, err)
}

func TestGradeIsWorstOfDirections(t *testing.T) {
	qc, applier, bus, session := newTestController(t, quietConfig())

	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradeExcellent, Downlink: rtc.GradePoor})

	p := applier.waitProfile(t)
	assert.Equal(t, rtc.BitratePoorKbps, p.BitrateKbps)
	assert.Equal(t, rtc.GradePoor, qc.Grade())
	assert.Equal(t, rtc.GradePoor, session.Grade())
}

func TestGradeTableFidelity(t *testing.T) {
	// Grade sequence 1,3,5,6,2 must produce bitrates 32,24,16,8,32 in
	// order, with no intermediate profile in between.
	_, applier, bus, _ := newTestController(t, quietConfig())

	grades := []rtc.NetworkGrade{
		rtc.GradeExcellent, rtc.GradePoor, rtc.GradeVeryBad, rtc.GradeDown, rtc.GradeGood,
	}
	expected := []int{32, 24, 16, 8, 32}

	for i, g := range grades {
		bus.Publish(rtc.QualitySample{UID: 0, Uplink: g, Downlink: rtc.GradeUnknown})
		p := applier.waitProfile(t)
		assert.Equal(t, expected[i], p.BitrateKbps, "grade %s", g)
	}

	assert.Equal(t, len(expected), applier.applyCount())
}

func TestUnchangedMildGradeDoesNotReapply(t *testing.T) {
	_, applier, bus, _ := newTestController(t, quietConfig())

	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradePoor, Downlink: rtc.GradeUnknown})
	applier.waitProfile(t)

	// A repeat of a mild grade is left to the periodic tick.
	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradePoor, Downlink: rtc.GradeUnknown})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, applier.applyCount())
}

func TestSevereGradeReappliesEvenWhenUnchanged(t *testing.T) {
	_, applier, bus, _ := newTestController(t, quietConfig())

	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradeVeryBad, Downlink: rtc.GradeUnknown})
	applier.waitProfile(t)

	// Regression at Bad or worse recomputes regardless of cadence.
	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradeVeryBad, Downlink: rtc.GradeUnknown})
	p := applier.waitProfile(t)
	assert.Equal(t, rtc.BitrateDegradedKbps, p.BitrateKbps)
}

func TestLossEscalationImmediate(t *testing.T) {
	qc, applier, bus, _ := newTestController(t, quietConfig())

	bus.Publish(rtc.StatsSample{DurationS: 10, TxLossPct: 20, RxLossPct: 1})

	p := applier.waitProfile(t)
	assert.Equal(t, rtc.BitrateDegradedKbps, p.BitrateKbps)
	assert.True(t, p.FEC, "loss escalation must force FEC on")
	assert.True(t, p.LossConcealment)
	assert.True(t, qc.HighLoss())
}

func TestLossEscalationOnReceiveDirection(t *testing.T) {
	qc, applier, bus, _ := newTestController(t, quietConfig())

	bus.Publish(rtc.StatsSample{DurationS: 10, TxLossPct: 0, RxLossPct: 16})

	p := applier.waitProfile(t)
	assert.True(t, p.FEC)
	assert.True(t, qc.HighLoss())
}

func TestLossRecoveryRestoresGradeProfile(t *testing.T) {
	qc, applier, bus, _ := newTestController(t, quietConfig())

	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradeGood, Downlink: rtc.GradeUnknown})
	applier.waitProfile(t)

	bus.Publish(rtc.StatsSample{TxLossPct: 30})
	p := applier.waitProfile(t)
	require.True(t, p.FEC)

	// Loss back under threshold resets the latch on the next sample.
	bus.Publish(rtc.StatsSample{TxLossPct: 3})
	p = applier.waitProfile(t)
	assert.False(t, p.FEC)
	assert.Equal(t, rtc.BitrateBaselineKbps, p.BitrateKbps)
	assert.False(t, qc.HighLoss())
}

func TestLossAtThresholdDoesNotEscalate(t *testing.T) {
	qc, applier, bus, _ := newTestController(t, quietConfig())

	// The rule is strictly greater than 15 percent.
	bus.Publish(rtc.StatsSample{TxLossPct: 15, RxLossPct: 15})

	time.Sleep(100 * time.Millisecond)
	assert.False(t, qc.HighLoss())
	assert.Equal(t, 0, applier.applyCount())
}

func TestPeriodicReapplyWhileJoined(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptInterval = 20 * time.Millisecond

	_, applier, _, session := newTestController(t, cfg)
	session.markJoined("chan-1", 5, true)

	p := applier.waitProfile(t)
	assert.Equal(t, rtc.BitrateBaselineKbps, p.BitrateKbps)
}

func TestPeriodicSkipsWhenNotJoined(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptInterval = 20 * time.Millisecond

	_, applier, _, _ := newTestController(t, cfg)

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, applier.applyCount())
}

func TestEngineFailureAbsorbed(t *testing.T) {
	_, applier, bus, _ := newTestController(t, quietConfig())
	applier.failNext = 1

	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradePoor, Downlink: rtc.GradeUnknown})
	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradeBad, Downlink: rtc.GradeUnknown})

	// The first application fails and is absorbed; the loop keeps
	// processing and the second sample succeeds.
	p := applier.waitProfile(t)
	assert.Equal(t, rtc.BitrateDegradedKbps, p.BitrateKbps)
}

func TestApplyWorstCaseAndReapply(t *testing.T) {
	qc, applier, bus, _ := newTestController(t, quietConfig())

	bus.Publish(rtc.QualitySample{UID: 0, Uplink: rtc.GradePoor, Downlink: rtc.GradeUnknown})
	applier.waitProfile(t)

	qc.ApplyWorstCase()
	p := applier.waitProfile(t)
	assert.Equal(t, rtc.BitrateFloorKbps, p.BitrateKbps)

	// Reapply derives from the latest known grade, not from Excellent.
	qc.Reapply()
	p = applier.waitProfile(t)
	assert.Equal(t, rtc.BitratePoorKbps, p.BitrateKbps)
}

func TestControllerStartStop(t *testing.T) {
	applier := newFakeApplier()
	bus := rtc.NewBus()
	defer bus.Close()

	qc, err := NewQualityController(applier, bus, NewSession(), quietConfig())
	require.NoError(t, err)

	require.NoError(t, qc.Start())
	assert.Error(t, qc.Start(), "double start must be rejected")

	qc.Stop()
	qc.Stop() // idempotent

	require.NoError(t, qc.Start())
	qc.Stop()
}
