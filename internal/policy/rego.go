package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog/log"

	"github.com/adriacb/enact/internal/model"
)

// maxRegoInputSize bounds the serialized input accepted by the Rego
// evaluator, guarding against memory exhaustion from a pathological
// arguments/context payload.
const maxRegoInputSize = 1 << 20 // 1 MiB

// regoQuery is the query string every Rego policy is compiled against; the
// rule set is expected to expose data.enact.allow and, optionally,
// data.enact.reasons.
const regoQuery = "data.enact"

// Rego is the open extension point: a Policy kind backed by Open Policy
// Agent. It is initialized from one or more .rego source paths (or a
// bundle) and an in-memory document store that registry/config code may
// update at runtime via UpdateData.
type Rego struct {
	mu          sync.RWMutex
	query       *rego.PreparedEvalQuery
	store       storage.Store
	defaultAllow bool
}

// NewRego constructs an empty Rego policy ready to receive LoadPolicies or
// LoadBundle before first use.
func NewRego(defaultAllow bool) *Rego {
	return &Rego{store: inmem.New(), defaultAllow: defaultAllow}
}

// LoadPolicies compiles the Rego source files at the given paths.
func (r *Rego) LoadPolicies(ctx context.Context, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pr := rego.New(
		rego.Query(regoQuery),
		rego.Store(r.store),
		rego.Load(paths, nil),
	)
	pq, err := pr.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing rego policy: %w", err)
	}
	r.query = &pq
	return nil
}

// LoadBundle compiles a policy bundle (tar.gz or directory) in place of
// discrete source files.
func (r *Rego) LoadBundle(ctx context.Context, bundlePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pr := rego.New(
		rego.Query(regoQuery),
		rego.Store(r.store),
		rego.LoadBundle(bundlePath),
	)
	pq, err := pr.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing rego bundle: %w", err)
	}
	r.query = &pq
	return nil
}

// UpdateData writes supplementary reference data (allow-lists, quotas,
// anything rules read from `data`) into the store at the given path using
// the OPA storage transaction API.
func (r *Rego) UpdateData(ctx context.Context, path string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, err := r.store.NewTransaction(ctx, storage.WriteParams)
	if err != nil {
		return fmt.Errorf("starting storage transaction: %w", err)
	}
	storagePath, ok := storage.ParsePath("/" + path)
	if !ok {
		r.store.Abort(ctx, txn)
		return fmt.Errorf("invalid storage path: %s", path)
	}
	if err := r.store.Write(ctx, txn, storage.AddOp, storagePath, data); err != nil {
		r.store.Abort(ctx, txn)
		return fmt.Errorf("writing to storage path %s: %w", path, err)
	}
	if err := r.store.Commit(ctx, txn); err != nil {
		r.store.Abort(ctx, txn)
		return fmt.Errorf("committing storage transaction: %w", err)
	}
	return nil
}

// regoInput mirrors GovernanceRequest in the shape Rego rules see as
// `input`.
type regoInput struct {
	AgentID       string        `json:"agent_id"`
	ToolName      string        `json:"tool_name"`
	FunctionName  string        `json:"function_name"`
	Arguments     model.Args    `json:"arguments"`
	Context       model.Context `json:"context"`
	CorrelationID string        `json:"correlation_id"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Evaluate implements model.Policy by running the prepared query against
// the request and interpreting its `allow`/`reasons` output document. An
// unloaded policy falls back to DefaultAllow. A marshaling failure, an
// oversized input, or an evaluation error is returned as an error, which
// the engine converts into its "internal: policy" denial.
func (r *Rego) Evaluate(req model.GovernanceRequest) (model.GovernanceDecision, error) {
	r.mu.RLock()
	pq := r.query
	r.mu.RUnlock()

	if pq == nil {
		return model.GovernanceDecision{Allow: r.defaultAllow, Reason: "rego policy not loaded"}, nil
	}

	in := regoInput{
		AgentID:       req.AgentID,
		ToolName:      req.ToolName,
		FunctionName:  req.FunctionName,
		Arguments:     req.Arguments,
		Context:       req.Context,
		CorrelationID: req.CorrelationID,
		Timestamp:     req.Timestamp,
	}

	encoded, err := json.Marshal(in)
	if err != nil {
		return model.GovernanceDecision{}, fmt.Errorf("marshaling rego input: %w", err)
	}
	if len(encoded) > maxRegoInputSize {
		return model.GovernanceDecision{}, fmt.Errorf("rego input exceeds %d bytes", maxRegoInputSize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := pq.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		log.Error().Err(err).Str("agent", req.AgentID).Str("tool", req.ToolName).Msg("rego evaluation failed")
		return model.GovernanceDecision{}, fmt.Errorf("rego evaluation: %w", err)
	}

	allow := r.defaultAllow
	var reasons []string

	if len(results) > 0 && len(results[0].Expressions) > 0 {
		switch v := results[0].Expressions[0].Value.(type) {
		case map[string]any:
			if a, ok := v["allow"].(bool); ok {
				allow = a
			}
			if rs, ok := v["reasons"].([]any); ok {
				for _, item := range rs {
					if s, ok := item.(string); ok {
						reasons = append(reasons, s)
					}
				}
			}
		case bool:
			allow = v
		}
	}

	reason := "rego policy: allow"
	if !allow {
		reason = "rego policy: deny"
	}
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return model.GovernanceDecision{Allow: allow, Reason: reason}, nil
}

// BaseToolAccessPolicy is a starting rule set new deployments can load
// and extend: it allows a tool call only when the agent's allow-list
// (supplied via UpdateData under "policies/allowed_tools") names the
// tool and no forbidden-argument pattern matches.
const BaseToolAccessPolicy = `
package enact

import future.keywords.in

default allow = false

allow {
	tool_allowed
	not tool_blocked
	arguments_valid
}

tool_allowed {
	input.tool_name in data.policies.allowed_tools[input.agent_id]
}

tool_blocked {
	input.tool_name in data.policies.blocked_tools[input.agent_id]
}

arguments_valid {
	not contains_forbidden_pattern
}

contains_forbidden_pattern {
	pattern := data.policies.forbidden_patterns[_]
	regex.match(pattern, json.marshal(input.arguments))
}

reasons[reason] {
	not tool_allowed
	reason := sprintf("tool '%s' not allowed for agent '%s'", [input.tool_name, input.agent_id])
}

reasons[reason] {
	tool_blocked
	reason := sprintf("tool '%s' is explicitly blocked for agent '%s'", [input.tool_name, input.agent_id])
}

reasons[reason] {
	not arguments_valid
	reason := sprintf("arguments for tool '%s' match a forbidden pattern", [input.tool_name])
}
`
