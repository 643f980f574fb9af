package rtc

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Playback volume bounds accepted by the engine; 100 is unity gain.
const (
	VolumeMin = 0
	VolumeMax = 400
)

// Adapter wraps an Engine with lifecycle bookkeeping and republishes
// every engine callback as a typed Event on the Bus.
//
// The adapter is built for a single logical session at a time: one
// channel can be joined at any moment, and Initialize is idempotent so
// a coordinator can lazily ensure readiness without tracking engine
// state itself.
type Adapter struct {
	mu sync.Mutex

	engine Engine
	bus    *Bus

	initialized bool
	joined      bool
	channelID   string
}

// NewAdapter creates an adapter over the given engine, publishing its
// events on bus.
func NewAdapter(engine Engine, bus *Bus) (*Adapter, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if bus == nil {
		return nil, errors.New("event bus cannot be nil")
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewAdapter",
	}).Debug("Media engine adapter created")

	return &Adapter{
		engine: engine,
		bus:    bus,
	}, nil
}

// Initialize prepares the engine with the application credential,
// installs the event handler, and acquires the microphone permission.
//
// The call is idempotent: a second Initialize while already
// initialized is a no-op success and registers no duplicate handlers.
// A denied microphone permission is returned as an EngineError with
// CodePermission and is not retried here.
func (a *Adapter) Initialize(appID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		logrus.WithFields(logrus.Fields{
			"function": "Initialize",
		}).Debug("Adapter already initialized, skipping")
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Initialize",
	}).Info("Initializing media engine")

	if err := a.engine.Setup(appID, a.handler()); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Initialize",
			"error":    err.Error(),
		}).Error("Engine setup failed")
		return wrapEngineErr("initialize", CodeUnknown, err)
	}

	if err := a.engine.RequestMicrophonePermission(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Initialize",
			"error":    err.Error(),
		}).Error("Microphone permission denied")
		return wrapEngineErr("initialize", CodePermission, err)
	}

	a.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "Initialize",
	}).Info("Media engine initialized")

	return nil
}

// Reinitialize releases the engine and initializes it from scratch.
// Used by the coordinator's single join-retry path.
func (a *Adapter) Reinitialize(appID string) error {
	a.mu.Lock()
	if a.initialized {
		if err := a.engine.Release(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Reinitialize",
				"error":    err.Error(),
			}).Warn("Engine release failed during reinitialization")
		}
		a.initialized = false
		a.joined = false
		a.channelID = ""
	}
	a.mu.Unlock()

	return a.Initialize(appID)
}

// IsInitialized reports whether the engine has been initialized.
func (a *Adapter) IsInitialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// Join connects to the channel with the short-lived token and the
// credential-assigned uid. The local stream is always left muted after
// a successful join; unmuting is a deliberate later step.
func (a *Adapter) Join(token, channelID string, uid uint32, enableAudio bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return wrapEngineErr("join", CodeUnknown, errors.New("engine not initialized"))
	}
	if a.joined {
		return wrapEngineErr("join", CodeAlreadyInState, errors.New("already in a channel"))
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Join",
		"channel_id": channelID,
		"uid":        uid,
		"audio":      enableAudio,
	}).Info("Joining media channel")

	if err := a.engine.JoinChannel(token, channelID, uid); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Join",
			"channel_id": channelID,
			"error":      err.Error(),
		}).Error("Channel join failed")
		return wrapEngineErr("join", CodeNetwork, err)
	}

	// Default post-join state is muted regardless of enableAudio;
	// the coordinator unmutes once the peer has actually arrived.
	if err := a.engine.MuteLocalAudio(true); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Join",
			"error":    err.Error(),
		}).Warn("Post-join mute failed")
	}

	a.joined = true
	a.channelID = channelID

	return nil
}

// Leave disconnects from the current channel. Leaving while not joined
// is a no-op success.
func (a *Adapter) Leave() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.joined {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Leave",
		"channel_id": a.channelID,
	}).Info("Leaving media channel")

	if err := a.engine.LeaveChannel(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Leave",
			"error":    err.Error(),
		}).Error("Channel leave failed")
		return wrapEngineErr("leave", CodeNetwork, err)
	}

	a.joined = false
	a.channelID = ""

	return nil
}

// IsJoined reports whether a channel is currently joined.
func (a *Adapter) IsJoined() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.joined
}

// SetMuted mutes or unmutes the local outgoing stream.
func (a *Adapter) SetMuted(muted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.MuteLocalAudio(muted); err != nil {
		return wrapEngineErr("set_muted", CodeUnknown, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SetMuted",
		"muted":    muted,
	}).Debug("Local audio mute state changed")

	return nil
}

// SetSpeakerphone toggles loudspeaker playback routing.
func (a *Adapter) SetSpeakerphone(enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.SetSpeakerphone(enabled); err != nil {
		return wrapEngineErr("set_speakerphone", CodeUnknown, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SetSpeakerphone",
		"enabled":  enabled,
	}).Debug("Speakerphone state changed")

	return nil
}

// SetEncoderProfile applies the encoder parameters for the current
// network conditions to the outgoing stream.
func (a *Adapter) SetEncoderProfile(profile EncoderProfile) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.ApplyEncoderProfile(profile); err != nil {
		return wrapEngineErr("set_encoder_profile", CodeUnknown, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":          "SetEncoderProfile",
		"bitrate_kbps":      profile.BitrateKbps,
		"stereo":            profile.Stereo,
		"noise_suppression": profile.NoiseSuppression,
		"fec":               profile.FEC,
	}).Debug("Encoder profile applied")

	return nil
}

// SetVolume adjusts playback volume; values outside 0..400 are
// rejected without touching the engine.
func (a *Adapter) SetVolume(volume int) error {
	if volume < VolumeMin || volume > VolumeMax {
		return wrapEngineErr("set_volume", CodeUnknown,
			errors.New("volume out of range"))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.engine.AdjustPlaybackVolume(volume); err != nil {
		return wrapEngineErr("set_volume", CodeUnknown, err)
	}

	return nil
}

// Release tears the engine down. The adapter can be initialized again
// afterwards.
func (a *Adapter) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}

	a.initialized = false
	a.joined = false
	a.channelID = ""

	if err := a.engine.Release(); err != nil {
		return wrapEngineErr("release", CodeUnknown, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Release",
	}).Info("Media engine released")

	return nil
}

// handler builds the EventHandler translating engine callbacks into
// published events. Installed exactly once per engine Setup.
func (a *Adapter) handler() *EventHandler {
	return &EventHandler{
		OnJoinSuccess: func(channelID string, uid uint32, elapsedMs int) {
			a.bus.Publish(JoinSucceeded{ChannelID: channelID, LocalUID: uid, ElapsedMs: elapsedMs})
		},
		OnLeaveChannel: func(channelID string) {
			a.bus.Publish(LeftChannel{ChannelID: channelID})
		},
		OnUserJoined: func(uid uint32, elapsedMs int) {
			a.bus.Publish(PeerJoined{UID: uid, ElapsedMs: elapsedMs})
		},
		OnUserOffline: func(uid uint32, reason int) {
			a.bus.Publish(PeerLeft{UID: uid, Reason: reason})
		},
		OnConnectionStateChanged: func(state ConnectionState, reason int) {
			a.bus.Publish(ConnectionStateChanged{State: state, Reason: reason})
		},
		OnNetworkQuality: func(uid uint32, uplink, downlink NetworkGrade) {
			a.bus.Publish(QualitySample{UID: uid, Uplink: uplink, Downlink: downlink})
		},
		OnChannelStats: func(durationS int, txLossPct, rxLossPct float64) {
			a.bus.Publish(StatsSample{DurationS: durationS, TxLossPct: txLossPct, RxLossPct: rxLossPct})
		},
		OnLocalAudioStateChanged: func(state LocalAudioState, errCode int) {
			a.bus.Publish(LocalAudioStateChanged{State: state, Err: errCode})
		},
	}
}

// wrapEngineErr wraps err as an EngineError unless it already is one.
func wrapEngineErr(op string, code EngineErrorCode, err error) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Code: code, Op: op, Err: err}
}
