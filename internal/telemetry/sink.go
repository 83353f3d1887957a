package telemetry

import (
	"context"
	"time"

	"github.com/adriacb/enact/internal/model"
)

// DecisionSink adapts a Provider into an audit.Sink so the engine's normal
// audit fan-out is what drives governance metrics, rather than bolting
// metrics recording onto the engine itself. It never fails: a metrics
// backend hiccup must never show up as a sink failure in the audit log.
type DecisionSink struct {
	Provider *Provider
}

// Name implements audit.Sink.
func (s *DecisionSink) Name() string { return "telemetry" }

// Log implements audit.Sink by recording the decision as governance
// metrics; it never returns an error.
func (s *DecisionSink) Log(record model.AuditRecord) error {
	ctx := context.Background()
	s.Provider.RecordDecision(ctx, DecisionMetrics{
		Tool:           record.Tool,
		Allow:          record.Allow,
		DecisionSource: record.DecisionSource,
		Duration:       time.Duration(record.DurationMs) * time.Millisecond,
	})
	return nil
}
