package rtc

// EncoderProfile is the tuple of audio-encoding parameters applied to
// the local outgoing stream. Profiles are derived, never stored: each
// one is a pure function of the current network grade (plus the loss
// escalation latch), so a stale write is always corrected by the next
// recomputation.
type EncoderProfile struct {
	BitrateKbps      int
	Stereo           bool
	NoiseSuppression bool
	AGC              bool
	FEC              bool
	LossConcealment  bool
}

// Encoder bitrate tiers in kbps, monotonic in grade.
const (
	BitrateBaselineKbps = 32
	BitratePoorKbps     = 24
	BitrateDegradedKbps = 16
	BitrateFloorKbps    = 8
)

// ProfileForGrade maps a network grade to the encoder profile for that
// tier. The table is the authoritative adaptation policy:
//
//	unknown/excellent/good (0-2): 32 kbps, stereo, no suppression
//	poor (3):                     24 kbps, mono
//	bad/very_bad (4-5):           16 kbps, mono, suppression + AGC
//	down (6):                      8 kbps, minimum viable
func ProfileForGrade(grade NetworkGrade) EncoderProfile {
	switch {
	case grade <= GradeGood:
		return EncoderProfile{
			BitrateKbps: BitrateBaselineKbps,
			Stereo:      true,
		}
	case grade == GradePoor:
		return EncoderProfile{
			BitrateKbps: BitratePoorKbps,
		}
	case grade == GradeBad || grade == GradeVeryBad:
		return EncoderProfile{
			BitrateKbps:      BitrateDegradedKbps,
			NoiseSuppression: true,
			AGC:              true,
		}
	default:
		return EncoderProfile{
			BitrateKbps: BitrateFloorKbps,
		}
	}
}

// LossEscalationProfile returns the profile applied while sustained
// packet loss exceeds the escalation threshold: the very-bad tier
// augmented with forward error correction and enhanced loss
// concealment, independent of the grade-based profile.
func LossEscalationProfile() EncoderProfile {
	p := ProfileForGrade(GradeVeryBad)
	p.FEC = true
	p.LossConcealment = true
	return p
}
