// Package validate implements the intent-validation pipeline: an ordered
// list of validators, each answering valid/invalid with a reason, short-
// circuiting on the first invalid result.
package validate

import "github.com/adriacb/enact/internal/model"

// Result is one validator's verdict.
type Result struct {
	Valid  bool
	Reason string
}

// Valid is the canonical passing result.
var Valid = Result{Valid: true}

// Invalid builds a failing result with the given reason.
func Invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// Validator checks one aspect of a request's intent.
type Validator interface {
	Validate(req model.GovernanceRequest) (Result, error)
}

// Pipeline runs validators in order and stops at the first invalid or
// erroring result.
type Pipeline struct {
	validators []Validator
}

// NewPipeline builds a Pipeline from the given validators, evaluated in
// argument order.
func NewPipeline(validators ...Validator) *Pipeline {
	return &Pipeline{validators: validators}
}

// Run executes the pipeline. It returns the first invalid Result
// encountered, or Valid if every validator passed. A validator error is
// returned as-is for the caller (the engine) to convert into its
// "internal: <kind>" denial shape.
func (p *Pipeline) Run(req model.GovernanceRequest) (Result, error) {
	for _, v := range p.validators {
		res, err := v.Validate(req)
		if err != nil {
			return Result{}, err
		}
		if !res.Valid {
			return res, nil
		}
	}
	return Valid, nil
}
