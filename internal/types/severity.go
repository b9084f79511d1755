package types

// Severity classifies how a narrative or notification should be styled.
type Severity string

const (
	SeverityDanger  Severity = "danger"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityNeutral Severity = "neutral"
)

// SeverityForPriority maps a narrative priority to its display severity.
// Unrecognized priorities map to SeverityNeutral so rendering stays total.
func SeverityForPriority(p Priority) Severity {
	switch p {
	case PriorityHigh:
		return SeverityDanger
	case PriorityMedium:
		return SeverityWarning
	case PriorityLow:
		return SeverityInfo
	default:
		return SeverityNeutral
	}
}
