// Package policy implements the built-in Policy kinds: rule-based,
// temporal, delegating (remote decision service), allow-all/deny-all, and
// a Rego-backed kind built on Open Policy Agent as the spec's open
// extension point.
package policy

import (
	"github.com/adriacb/enact/internal/model"
)

// RuleBased scans an ordered rule list; the first whose three regexes all
// match wins. If none matches, default_allow applies.
type RuleBased struct {
	Rules        []model.Rule
	DefaultAllow bool
}

// NewRuleBased compiles the given specs in order and returns a RuleBased
// policy. Regex compilation happens once, here, per §4.8.
func NewRuleBased(specs []model.RuleSpec, defaultAllow bool) (*RuleBased, error) {
	rules := make([]model.Rule, 0, len(specs))
	for _, spec := range specs {
		r, err := model.CompileRule(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return &RuleBased{Rules: rules, DefaultAllow: defaultAllow}, nil
}

// Evaluate implements model.Policy.
func (p *RuleBased) Evaluate(req model.GovernanceRequest) (model.GovernanceDecision, error) {
	for _, r := range p.Rules {
		if r.Matches(req) {
			dec := model.GovernanceDecision{
				Allow:  r.Action == model.ActionAllow,
				Reason: r.Reason,
				RuleID: r.ID,
			}
			return dec, nil
		}
	}
	return model.GovernanceDecision{Allow: p.DefaultAllow, Reason: "no rule matched"}, nil
}

// Concat composes multiple RuleBased policies into one by concatenating
// their rule lists in argument order, preserving each source policy's
// first-match semantics within the merged list. Used to resolve multiple
// group policies when all are RuleBased (§4.9, §9 Open Questions — this
// repo picks concatenation, the spec's noted future option, over
// first-wins, since a denied request should reflect every group's
// applicable rule rather than only the first-inserted group's).
func Concat(policies ...*RuleBased) *RuleBased {
	out := &RuleBased{DefaultAllow: false}
	for i, p := range policies {
		if p == nil {
			continue
		}
		out.Rules = append(out.Rules, p.Rules...)
		if i == 0 {
			out.DefaultAllow = p.DefaultAllow
		}
	}
	return out
}
