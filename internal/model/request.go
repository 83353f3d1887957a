package model

import "time"

// GovernanceRequest is the immutable input to the governance engine. One
// value is constructed per attempted tool call.
type GovernanceRequest struct {
	AgentID       string    `json:"agent_id"`
	ToolName      string    `json:"tool_name"`
	FunctionName  string    `json:"function_name"`
	Arguments     Args      `json:"arguments"`
	Context       Context   `json:"context"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// GovernanceDecision is the immutable output of the governance engine.
type GovernanceDecision struct {
	Allow    bool           `json:"allow"`
	Reason   string         `json:"reason"`
	RuleID   string         `json:"rule_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WithMetadata returns a copy of the decision with the given key set in its
// metadata map, allocating the map if necessary.
func (d GovernanceDecision) WithMetadata(key string, value any) GovernanceDecision {
	out := d
	meta := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[key] = value
	out.Metadata = meta
	return out
}

// Deny builds a terminal denial decision with the given reason.
func Deny(reason string) GovernanceDecision {
	return GovernanceDecision{Allow: false, Reason: reason}
}

// Allow builds an allow decision with the given reason.
func Allow(reason string) GovernanceDecision {
	return GovernanceDecision{Allow: true, Reason: reason}
}
