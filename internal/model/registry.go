package model

import "time"

// ToolEntry describes one registered tool: its opaque handle, its own
// policy override (highest precedence), and its access list.
type ToolEntry struct {
	Name           string
	Handle         any
	Policy         Policy
	AllowedAgents  map[string]struct{}
	AllowedGroups  map[string]struct{}
	ExpiresAt      *time.Time
}

// Expired reports whether the entry's expires_at has passed, per invariant
// 3: an expired entry is treated as not present for all lookups.
func (t *ToolEntry) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// Public reports whether the tool has no access list configured, in which
// case every agent may reach it.
func (t *ToolEntry) Public() bool {
	return len(t.AllowedAgents) == 0 && len(t.AllowedGroups) == 0
}

// AgentGroup is a named set of agents sharing a policy.
type AgentGroup struct {
	Name    string
	Policy  Policy
	Members map[string]struct{}
}

// Policy is the common capability every policy kind implements: a pure
// function from request to decision. Defined here (rather than in package
// policy) so model.ToolEntry and model.AgentGroup can reference it without
// an import cycle; package policy provides the concrete implementations.
type Policy interface {
	Evaluate(req GovernanceRequest) (GovernanceDecision, error)
}
