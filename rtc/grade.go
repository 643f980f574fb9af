package rtc

import "fmt"

// NetworkGrade is the ordinal network-quality classification reported
// by the media engine for a link direction. Lower is better, except
// GradeUnknown which means "no sample yet" and is treated as healthy.
// The numeric values match the engine's wire representation.
type NetworkGrade int

const (
	// GradeUnknown indicates no quality sample has been observed yet
	GradeUnknown NetworkGrade = iota
	// GradeExcellent indicates an optimal link
	GradeExcellent
	// GradeGood indicates minor, inaudible impairment
	GradeGood
	// GradePoor indicates audible but tolerable impairment
	GradePoor
	// GradeBad indicates clearly degraded audio
	GradeBad
	// GradeVeryBad indicates barely usable audio
	GradeVeryBad
	// GradeDown indicates the link is effectively unusable
	GradeDown
)

// String returns the human-readable grade name.
func (g NetworkGrade) String() string {
	switch g {
	case GradeUnknown:
		return "unknown"
	case GradeExcellent:
		return "excellent"
	case GradeGood:
		return "good"
	case GradePoor:
		return "poor"
	case GradeBad:
		return "bad"
	case GradeVeryBad:
		return "very_bad"
	case GradeDown:
		return "down"
	default:
		return fmt.Sprintf("invalid(%d)", int(g))
	}
}

// WorstGrade returns the worse of two directional grades. The session
// tracks the worst of uplink and downlink (conservative approach).
func WorstGrade(uplink, downlink NetworkGrade) NetworkGrade {
	if uplink > downlink {
		return uplink
	}
	return downlink
}
