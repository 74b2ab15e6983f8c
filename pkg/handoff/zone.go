package handoff

// Zone is a context-usage threshold band (spec §4.7: "design decision, not a
// runtime knob" — the boundaries are fixed, unlike the Health Monitor's
// probe cadence).
type Zone string

const (
	ZoneNormal     Zone = "normal"
	ZoneMonitoring Zone = "monitoring"
	ZoneWarning    Zone = "warning"
	ZoneCritical   Zone = "critical"
	ZoneMandatory  Zone = "mandatory"
)

// Classify maps a context_usage fraction in [0,1] to its zone per the
// fixed policy table in spec §4.7.
func Classify(usage float64) Zone {
	switch {
	case usage < 0.30:
		return ZoneNormal
	case usage < 0.50:
		return ZoneMonitoring
	case usage < 0.70:
		return ZoneWarning
	case usage < 0.85:
		return ZoneCritical
	default:
		return ZoneMandatory
	}
}

// MaxTaskTokens returns the largest task size (in estimated tokens) a PS in
// this zone may accept, or -1 if there is no limit. Mandatory accepts
// nothing.
func MaxTaskTokens(z Zone) int {
	switch z {
	case ZoneNormal, ZoneMonitoring:
		return -1
	case ZoneWarning:
		return 5000
	case ZoneCritical:
		return 2000
	default:
		return 0
	}
}
