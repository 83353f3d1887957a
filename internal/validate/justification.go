package validate

import (
	"strings"

	"github.com/adriacb/enact/internal/model"
)

// Justification requires context.justification to be at least MinLength
// long and, when the tool has required keywords configured, to contain at
// least one of them as a case-insensitive substring.
type Justification struct {
	MinLength         int
	RequiredKeywords  map[string][]string // tool_name -> keywords, any one of which must appear
}

// Validate implements Validator.
func (j Justification) Validate(req model.GovernanceRequest) (Result, error) {
	justification, _ := req.Context.Justification()

	if len(justification) < j.MinLength {
		return Invalid("justification too short"), nil
	}

	keywords, hasRequirement := j.RequiredKeywords[req.ToolName]
	if !hasRequirement || len(keywords) == 0 {
		return Valid, nil
	}

	lower := strings.ToLower(justification)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return Valid, nil
		}
	}
	return Invalid("justification missing a required keyword for " + req.ToolName), nil
}
