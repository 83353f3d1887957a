package policy

import "github.com/adriacb/enact/internal/model"

// AllowAll always allows.
type AllowAll struct{}

func (AllowAll) Evaluate(model.GovernanceRequest) (model.GovernanceDecision, error) {
	return model.Allow("allow-all policy"), nil
}

// DenyAll always denies.
type DenyAll struct{}

func (DenyAll) Evaluate(model.GovernanceRequest) (model.GovernanceDecision, error) {
	return model.Deny("deny-all policy"), nil
}
