package policy

import (
	"testing"

	"github.com/adriacb/enact/internal/model"
)

func TestRuleBasedFirstMatchWins(t *testing.T) {
	p, err := NewRuleBased([]model.RuleSpec{
		{Tool: "db", Function: "delete_.*", AgentID: "admin", Action: model.ActionAllow, Reason: "admin may delete", ID: "r1"},
		{Tool: "db", Function: "delete_.*", Action: model.ActionDeny, Reason: "no one else may delete", ID: "r2"},
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	dec, err := p.Evaluate(model.GovernanceRequest{AgentID: "admin", ToolName: "db", FunctionName: "delete_table"})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow || dec.RuleID != "r1" {
		t.Fatalf("expected r1 to match first, got %+v", dec)
	}

	dec, err = p.Evaluate(model.GovernanceRequest{AgentID: "alice", ToolName: "db", FunctionName: "delete_table"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allow || dec.RuleID != "r2" {
		t.Fatalf("expected r2 to match, got %+v", dec)
	}
}

func TestRuleBasedDefaultAllowOnNoMatch(t *testing.T) {
	p, err := NewRuleBased(nil, true)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := p.Evaluate(model.GovernanceRequest{ToolName: "anything", FunctionName: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow || dec.Reason != "no rule matched" {
		t.Fatalf("expected default-allow with no-match reason, got %+v", dec)
	}
}

func TestWildcardShorthand(t *testing.T) {
	p, err := NewRuleBased([]model.RuleSpec{
		{Tool: "*", Function: "*", Action: model.ActionDeny, Reason: "deny everything"},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := p.Evaluate(model.GovernanceRequest{ToolName: "db", FunctionName: "select"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allow {
		t.Fatal("expected the wildcard rule to deny")
	}
}

func TestInvalidRuleRejected(t *testing.T) {
	if _, err := NewRuleBased([]model.RuleSpec{
		{Tool: "(", Function: "*", Action: model.ActionAllow, Reason: "bad regex"},
	}, false); err == nil {
		t.Fatal("expected a compile error for an invalid tool regex")
	}

	if _, err := NewRuleBased([]model.RuleSpec{
		{Tool: "*", Function: "*", Action: "maybe", Reason: "bad action"},
	}, false); err == nil {
		t.Fatal("expected an error for an invalid action")
	}

	if _, err := NewRuleBased([]model.RuleSpec{
		{Tool: "*", Function: "*", Action: model.ActionAllow, Reason: ""},
	}, false); err == nil {
		t.Fatal("expected an error for an empty reason")
	}
}

func TestConcatPreservesOrderAndFirstDefaultAllow(t *testing.T) {
	p1, err := NewRuleBased([]model.RuleSpec{
		{Tool: "*", Function: "read", Action: model.ActionAllow, Reason: "p1 read"},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := NewRuleBased([]model.RuleSpec{
		{Tool: "*", Function: "write", Action: model.ActionDeny, Reason: "p2 deny write"},
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	merged := Concat(p1, p2)
	if merged.DefaultAllow != true {
		t.Fatal("expected DefaultAllow to come from the first policy")
	}
	if len(merged.Rules) != 2 {
		t.Fatalf("expected 2 concatenated rules, got %d", len(merged.Rules))
	}
}
