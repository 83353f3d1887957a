package policy

import (
	"time"

	"github.com/adriacb/enact/internal/model"
)

// TimeWindow is one admissible interval: local clock time in [Start, End)
// on any of the listed weekdays.
type TimeWindow struct {
	Start      time.Duration // offset since local midnight
	End        time.Duration
	DaysOfWeek []time.Weekday
}

func (w TimeWindow) includesDay(d time.Weekday) bool {
	for _, wd := range w.DaysOfWeek {
		if wd == d {
			return true
		}
	}
	return false
}

func (w TimeWindow) includes(now time.Time) bool {
	if !w.includesDay(now.Weekday()) {
		return false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := now.Sub(midnight)
	return offset >= w.Start && offset < w.End
}

// Temporal allows iff now falls within any configured window, otherwise
// falls back to DefaultAllow. Now defaults to time.Now but is overridable
// for deterministic tests.
type Temporal struct {
	Windows      []TimeWindow
	DefaultAllow bool
	Now          func() time.Time
}

// NewTemporal builds a Temporal policy with the real wall clock.
func NewTemporal(windows []TimeWindow, defaultAllow bool) *Temporal {
	return &Temporal{Windows: windows, DefaultAllow: defaultAllow, Now: time.Now}
}

func (p *Temporal) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Evaluate implements model.Policy.
func (p *Temporal) Evaluate(req model.GovernanceRequest) (model.GovernanceDecision, error) {
	now := p.now()
	for _, w := range p.Windows {
		if w.includes(now) {
			return model.Allow("within permitted time window"), nil
		}
	}
	if p.DefaultAllow {
		return model.Allow("outside all windows, default allow"), nil
	}
	return model.Deny("outside all permitted time windows"), nil
}
