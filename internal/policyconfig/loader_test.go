package policyconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adriacb/enact/internal/model"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := write(t, "rules.yaml", `
default_allow: false
rules:
  - tool: db
    function: delete_.*
    agent_id: admin
    action: allow
    reason: admin may delete
    id: r1
  - tool: "*"
    function: "*"
    action: deny
    reason: deny everything else
`)

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := p.Evaluate(model.GovernanceRequest{AgentID: "admin", ToolName: "db", FunctionName: "delete_table"})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow || dec.RuleID != "r1" {
		t.Fatalf("expected r1 to match, got %+v", dec)
	}

	dec, err = p.Evaluate(model.GovernanceRequest{AgentID: "bob", ToolName: "db", FunctionName: "select"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allow {
		t.Fatalf("expected the catch-all deny rule to apply, got %+v", dec)
	}
}

func TestLoadJSON(t *testing.T) {
	path := write(t, "rules.json", `{
		"default_allow": true,
		"rules": [
			{"tool": "shell", "function": "*", "action": "deny", "reason": "shell is forbidden"}
		]
	}`)

	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := p.Evaluate(model.GovernanceRequest{ToolName: "shell", FunctionName: "run"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allow {
		t.Fatalf("expected shell deny rule to match, got %+v", dec)
	}

	dec, err = p.Evaluate(model.GovernanceRequest{ToolName: "other", FunctionName: "run"})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow {
		t.Fatalf("expected default_allow for non-matching tool, got %+v", dec)
	}
}

func TestLoadInvalidRuleReportsContext(t *testing.T) {
	path := write(t, "rules.yaml", `
default_allow: false
rules:
  - tool: "("
    function: "*"
    action: allow
    reason: bad regex
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an invalid tool regex")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/rules.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
