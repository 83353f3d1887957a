package validate

import "github.com/adriacb/enact/internal/model"

// ToolSchema declares which argument names a tool's function requires.
type ToolSchema struct {
	Required []string
}

// Schema verifies that every name in a tool's declared schema is present
// in the request's arguments. Tools with no declared schema pass
// unconditionally.
type Schema struct {
	Schemas map[string]ToolSchema // tool_name -> schema
}

// Validate implements Validator.
func (s Schema) Validate(req model.GovernanceRequest) (Result, error) {
	schema, ok := s.Schemas[req.ToolName]
	if !ok {
		return Valid, nil
	}
	for _, name := range schema.Required {
		if _, present := req.Arguments[name]; !present {
			return Invalid("missing required argument: " + name), nil
		}
	}
	return Valid, nil
}
