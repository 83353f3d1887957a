package validate

import "github.com/adriacb/enact/internal/model"

// Func adapts a plain function to the Validator interface, the way
// http.HandlerFunc adapts a function to http.Handler. Any caller-supplied
// validator satisfying Validator directly works in the pipeline too; Func
// is just the common case of "I only have a function".
type Func func(req model.GovernanceRequest) (Result, error)

// Validate implements Validator.
func (f Func) Validate(req model.GovernanceRequest) (Result, error) {
	return f(req)
}
