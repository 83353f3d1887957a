package registry

import (
	"testing"
	"time"

	"github.com/adriacb/enact/internal/model"
	"github.com/adriacb/enact/internal/policy"
)

func TestDuplicateToolNameRejected(t *testing.T) {
	r := New()
	if err := r.RegisterTool(model.ToolEntry{Name: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterTool(model.ToolEntry{Name: "t"}); err == nil {
		t.Fatal("expected an error registering a duplicate tool name")
	}
}

func TestPublicToolIsReachableByAnyAgent(t *testing.T) {
	r := New()
	if err := r.RegisterTool(model.ToolEntry{Name: "t", Handle: "handle"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetTool("t", "anyone"); !ok {
		t.Fatal("a tool with no access list should be public")
	}
}

func TestAccessListRestrictsTool(t *testing.T) {
	r := New()
	err := r.RegisterTool(model.ToolEntry{
		Name:          "t",
		AllowedAgents: map[string]struct{}{"alice": {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetTool("t", "alice"); !ok {
		t.Fatal("alice should be authorized")
	}
	if _, ok := r.GetTool("t", "bob"); ok {
		t.Fatal("bob should not be authorized")
	}
}

func TestGroupMembershipGrantsAccess(t *testing.T) {
	r := New()
	if err := r.CreateGroup("g", nil); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAgentToGroup("bob", "g"); err != nil {
		t.Fatal(err)
	}
	err := r.RegisterTool(model.ToolEntry{
		Name:          "t",
		AllowedGroups: map[string]struct{}{"g": {}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetTool("t", "bob"); !ok {
		t.Fatal("bob should be authorized via group membership")
	}
	if _, ok := r.GetTool("t", "carol"); ok {
		t.Fatal("carol is not a group member and should be denied")
	}
}

func TestExpiredToolIsAbsent(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	r := New()
	if err := r.RegisterTool(model.ToolEntry{Name: "t", ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.GetTool("t", "anyone"); ok {
		t.Fatal("expired tool should be absent")
	}
	if !r.ToolExpired("t") {
		t.Fatal("expected ToolExpired to report true")
	}
	if _, ok := r.GetTool("unknown", "anyone"); ok {
		t.Fatal("unknown tool should be absent")
	}
}

func TestPolicyPrecedenceToolBeatsAgentBeatsGroup(t *testing.T) {
	r := New()
	if err := r.CreateGroup("g", policy.AllowAll{}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAgentToGroup("a1", "g"); err != nil {
		t.Fatal(err)
	}
	r.SetAgentPolicy("a1", policy.AllowAll{})
	if err := r.RegisterTool(model.ToolEntry{Name: "t", Policy: policy.DenyAll{}}); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.GetPolicyForTool("t", "a1").(policy.DenyAll); !ok {
		t.Fatal("tool policy should win over agent and group policy")
	}
}

func TestPolicyPrecedenceAgentBeatsGroup(t *testing.T) {
	r := New()
	if err := r.CreateGroup("g", policy.DenyAll{}); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAgentToGroup("a1", "g"); err != nil {
		t.Fatal(err)
	}
	r.SetAgentPolicy("a1", policy.AllowAll{})
	if err := r.RegisterTool(model.ToolEntry{Name: "t"}); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.GetPolicyForTool("t", "a1").(policy.AllowAll); !ok {
		t.Fatal("agent policy should win over group policy when no tool policy is set")
	}
}

func TestGroupPoliciesConcatenateWhenAllRuleBased(t *testing.T) {
	r := New()

	rb1, err := policy.NewRuleBased([]model.RuleSpec{
		{Tool: "t", Function: "read", Action: model.ActionAllow, Reason: "g1 allows read"},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	rb2, err := policy.NewRuleBased([]model.RuleSpec{
		{Tool: "t", Function: "write", Action: model.ActionAllow, Reason: "g2 allows write"},
	}, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.CreateGroup("g1", rb1); err != nil {
		t.Fatal(err)
	}
	if err := r.CreateGroup("g2", rb2); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAgentToGroup("a1", "g1"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddAgentToGroup("a1", "g2"); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterTool(model.ToolEntry{Name: "t"}); err != nil {
		t.Fatal(err)
	}

	resolved := r.GetPolicyForTool("t", "a1")
	merged, ok := resolved.(*policy.RuleBased)
	if !ok {
		t.Fatalf("expected a concatenated *policy.RuleBased, got %T", resolved)
	}
	if len(merged.Rules) != 2 {
		t.Fatalf("expected both group rule lists concatenated, got %d rules", len(merged.Rules))
	}

	dec, err := merged.Evaluate(model.GovernanceRequest{ToolName: "t", FunctionName: "write"})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow {
		t.Fatalf("expected write to be allowed via g2's rule, got %+v", dec)
	}
}

func TestListToolsForAgentExcludesExpiredAndUnauthorized(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	r := New()
	if err := r.RegisterTool(model.ToolEntry{Name: "public"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterTool(model.ToolEntry{Name: "expired", ExpiresAt: &past}); err != nil {
		t.Fatal(err)
	}
	err := r.RegisterTool(model.ToolEntry{
		Name:          "restricted",
		AllowedAgents: map[string]struct{}{"someone-else": {}},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := r.ListToolsForAgent("a1")
	if len(got) != 1 || got[0] != "public" {
		t.Fatalf("expected only the public tool, got %v", got)
	}
}
