package model

import (
	"fmt"
	"regexp"
)

// Action is the effect a matching Rule applies.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// RuleSpec is the declarative, unvalidated form of a Rule — what a config
// loader or API request hands the engine before regex compilation.
type RuleSpec struct {
	Tool     string `json:"tool" yaml:"tool"`
	Function string `json:"function" yaml:"function"`
	AgentID  string `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Action   Action `json:"action" yaml:"action"`
	Reason   string `json:"reason" yaml:"reason"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
}

// Rule is a compiled, validated access rule. Regexes are anchored to the
// full value: "*" is accepted as shorthand for ".*".
type Rule struct {
	Tool     *regexp.Regexp
	Function *regexp.Regexp
	AgentID  *regexp.Regexp
	Action   Action
	Reason   string
	ID       string
}

// anchor turns a bare "*" into ".*" and anchors the pattern to the full
// value, matching the spec's "anchored to the full value" requirement.
func anchor(pattern string) string {
	if pattern == "*" {
		pattern = ".*"
	}
	return "^(?:" + pattern + ")$"
}

// CompileRule validates and compiles a RuleSpec into a Rule. A Rule is
// valid only if both the tool and function regexes compile; agent_id
// defaults to ".*" when empty.
func CompileRule(spec RuleSpec) (Rule, error) {
	if spec.Action != ActionAllow && spec.Action != ActionDeny {
		return Rule{}, fmt.Errorf("rule %q: invalid action %q", spec.ID, spec.Action)
	}

	toolRe, err := regexp.Compile(anchor(spec.Tool))
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: compiling tool pattern %q: %w", spec.ID, spec.Tool, err)
	}

	fnRe, err := regexp.Compile(anchor(spec.Function))
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: compiling function pattern %q: %w", spec.ID, spec.Function, err)
	}

	agentPattern := spec.AgentID
	if agentPattern == "" {
		agentPattern = ".*"
	}
	agentRe, err := regexp.Compile(anchor(agentPattern))
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: compiling agent_id pattern %q: %w", spec.ID, agentPattern, err)
	}

	if spec.Reason == "" {
		return Rule{}, fmt.Errorf("rule %q: reason must not be empty", spec.ID)
	}

	return Rule{
		Tool:     toolRe,
		Function: fnRe,
		AgentID:  agentRe,
		Action:   spec.Action,
		Reason:   spec.Reason,
		ID:       spec.ID,
	}, nil
}

// Matches reports whether the rule's three patterns all match the request.
func (r Rule) Matches(req GovernanceRequest) bool {
	return r.Tool.MatchString(req.ToolName) &&
		r.Function.MatchString(req.FunctionName) &&
		r.AgentID.MatchString(req.AgentID)
}
