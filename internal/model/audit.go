package model

import "time"

// AuditRecord is the durable record of one governance decision. Every
// decision the engine produces is submitted to every configured auditor
// exactly once, regardless of individual sink failures.
type AuditRecord struct {
	Timestamp      time.Time      `json:"timestamp"`
	AgentID        string         `json:"agent_id"`
	Tool           string         `json:"tool"`
	Function       string         `json:"function"`
	Arguments      Args           `json:"arguments,omitempty"`
	Allow          bool           `json:"allow"`
	Reason         string         `json:"reason"`
	DurationMs     int64          `json:"duration_ms"`
	CorrelationID  string         `json:"correlation_id"`
	DecisionSource string         `json:"decision_source,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewAuditRecord builds an AuditRecord from the request/decision pair the
// engine just produced.
func NewAuditRecord(req GovernanceRequest, dec GovernanceDecision, source string, duration time.Duration) AuditRecord {
	return AuditRecord{
		Timestamp:      req.Timestamp,
		AgentID:        req.AgentID,
		Tool:           req.ToolName,
		Function:       req.FunctionName,
		Arguments:      req.Arguments,
		Allow:          dec.Allow,
		Reason:         dec.Reason,
		DurationMs:     duration.Milliseconds(),
		CorrelationID:  req.CorrelationID,
		DecisionSource: source,
		Metadata:       dec.Metadata,
	}
}
