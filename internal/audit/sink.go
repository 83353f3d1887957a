// Package audit implements the audit sinks the governance engine fans
// decisions out to: a JSON-line file, HTTP, syslog, a CloudWatch Logs
// stream, and a Postgres table, plus a FanOut composing any set of them
// with per-sink failure isolation.
package audit

import (
	"github.com/adriacb/enact/internal/model"
)

// Sink durably records a governance decision. Implementations must not
// panic; Log errors are reported to the caller for logging but must never
// be allowed to affect the decision already returned to the original
// caller (§4.2).
type Sink interface {
	Log(record model.AuditRecord) error
	Name() string
}

// FanOut logs to every configured sink in order, in the given
// configuration order, isolating each sink's failure from the rest.
type FanOut struct {
	sinks  []Sink
	onFail func(sinkName string, err error)
}

// NewFanOut builds a FanOut over sinks. onFail, if non-nil, is invoked for
// every sink failure so the caller can route it to a logging channel; it
// must never be used to alter the decision already made.
func NewFanOut(onFail func(sinkName string, err error), sinks ...Sink) *FanOut {
	return &FanOut{sinks: sinks, onFail: onFail}
}

// Log attempts every sink exactly once, regardless of earlier failures.
func (f *FanOut) Log(record model.AuditRecord) {
	for _, s := range f.sinks {
		if err := s.Log(record); err != nil && f.onFail != nil {
			f.onFail(s.Name(), err)
		}
	}
}
