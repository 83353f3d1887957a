package oversight

// EscalationLevel is the outcome of mapping a confidence score against
// the configured thresholds.
type EscalationLevel string

const (
	None     EscalationLevel = "NONE"
	Notify   EscalationLevel = "NOTIFY"
	Review   EscalationLevel = "REVIEW"
	Approval EscalationLevel = "APPROVAL"
)

// ConfidenceThresholds configures the three boundaries between levels.
// Defaults per spec §4.10: High=0.9, Medium=0.7, Low=0.5.
type ConfidenceThresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultConfidenceThresholds returns the spec's default thresholds.
func DefaultConfidenceThresholds() ConfidenceThresholds {
	return ConfidenceThresholds{High: 0.9, Medium: 0.7, Low: 0.5}
}

// ConfidenceEscalation maps a confidence score to an escalation level and
// invokes a per-level callback, if configured.
type ConfidenceEscalation struct {
	thresholds ConfidenceThresholds
	onLevel    map[EscalationLevel]func(confidence float64)
}

// NewConfidenceEscalation builds a ConfidenceEscalation with the given
// thresholds and optional per-level callbacks.
func NewConfidenceEscalation(thresholds ConfidenceThresholds, onLevel map[EscalationLevel]func(confidence float64)) *ConfidenceEscalation {
	return &ConfidenceEscalation{thresholds: thresholds, onLevel: onLevel}
}

// Classify maps confidence to a level per the configured thresholds:
// >=High -> NONE, >=Medium -> NOTIFY, >=Low -> REVIEW, else APPROVAL.
func (c *ConfidenceEscalation) Classify(confidence float64) EscalationLevel {
	var level EscalationLevel
	switch {
	case confidence >= c.thresholds.High:
		level = None
	case confidence >= c.thresholds.Medium:
		level = Notify
	case confidence >= c.thresholds.Low:
		level = Review
	default:
		level = Approval
	}

	if cb, ok := c.onLevel[level]; ok && cb != nil {
		cb(confidence)
	}
	return level
}

// RequiresHuman reports whether a level mandates human involvement before
// the call may proceed: REVIEW and APPROVAL both do.
func RequiresHuman(level EscalationLevel) bool {
	return level == Review || level == Approval
}
