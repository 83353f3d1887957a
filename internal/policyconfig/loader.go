// Package policyconfig loads the declarative policy file format documented
// in the external interfaces the governance engine exposes: a single
// default_allow flag plus an ordered rule list, shared verbatim between
// YAML and JSON. Loading validates every rule's regex patterns and action
// enum up front, so a malformed file fails fast at startup rather than
// producing a silently-never-matching rule at request time.
package policyconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adriacb/enact/internal/model"
	"github.com/adriacb/enact/internal/policy"
)

// file is the on-disk schema shared by the YAML and JSON variants.
type file struct {
	DefaultAllow bool             `json:"default_allow" yaml:"default_allow"`
	Rules        []model.RuleSpec `json:"rules" yaml:"rules"`
}

// Load reads path, parsing it as YAML or JSON by file extension
// (.yaml/.yml for YAML, anything else for JSON), and compiles the result
// into a *policy.RuleBased. Every rule's tool/function/agent_id patterns
// and action enum are validated here; the first invalid entry fails the
// whole load with its position in the file.
func Load(path string) (*policy.RuleBased, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policyconfig: reading %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return loadYAML(path, data)
	default:
		return loadJSON(path, data)
	}
}

func loadJSON(path string, data []byte) (*policy.RuleBased, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("policyconfig: parsing %s: %w", path, err)
	}
	rules := make([]model.Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		r, err := model.CompileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("policyconfig: %s: rule %d: %w", path, i, err)
		}
		rules = append(rules, r)
	}
	return &policy.RuleBased{Rules: rules, DefaultAllow: f.DefaultAllow}, nil
}

func loadYAML(path string, data []byte) (*policy.RuleBased, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("policyconfig: parsing %s: %w", path, err)
	}

	var f file
	if err := root.Decode(&f); err != nil {
		return nil, fmt.Errorf("policyconfig: decoding %s: %w", path, err)
	}

	rulesLine := ruleLines(&root)

	rules := make([]model.Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		r, err := model.CompileRule(spec)
		if err != nil {
			line, ok := rulesLine[i]
			if ok {
				return nil, fmt.Errorf("policyconfig: %s: line %d: %w", path, line, err)
			}
			return nil, fmt.Errorf("policyconfig: %s: rule %d: %w", path, i, err)
		}
		rules = append(rules, r)
	}
	return &policy.RuleBased{Rules: rules, DefaultAllow: f.DefaultAllow}, nil
}

// ruleLines walks the document node for the top-level "rules" sequence and
// returns the source line of each entry, by index, so a compile failure
// can be reported with file/line context.
func ruleLines(root *yaml.Node) map[int]int {
	lines := map[int]int{}
	if len(root.Content) == 0 {
		return lines
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return lines
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		val := mapping.Content[i+1]
		if key.Value != "rules" || val.Kind != yaml.SequenceNode {
			continue
		}
		for idx, item := range val.Content {
			lines[idx] = item.Line
		}
	}
	return lines
}
