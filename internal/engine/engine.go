// Package engine implements the Governance Engine: the decision pipeline
// that takes a GovernanceRequest through kill-switch, validation, rate
// limiting, quota, circuit-breaking, policy evaluation, and oversight
// gates, then fans the resulting decision out to every configured
// auditor. Evaluate never panics or returns an error to the caller —
// every failure mode inside the pipeline is converted into a terminal
// deny decision, per §4.1/§7 of the governance spec this package
// implements.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/adriacb/enact/internal/audit"
	"github.com/adriacb/enact/internal/breaker"
	"github.com/adriacb/enact/internal/model"
	"github.com/adriacb/enact/internal/oversight"
	"github.com/adriacb/enact/internal/quota"
	"github.com/adriacb/enact/internal/ratelimit"
	"github.com/adriacb/enact/internal/validate"
)

// PolicyResolver resolves the effective policy for a (tool, agent) pair
// and reports tool expiry. *registry.Registry satisfies this; it is
// expressed as an interface here purely so tests can substitute a fake
// without constructing a full registry.
type PolicyResolver interface {
	GetPolicyForTool(tool, agentID string) model.Policy
	ToolExpired(tool string) bool
}

// Config wires every subsystem the engine orchestrates. A nil Validators,
// RateLimiter, Quota, Breaker, KillSwitch, Approval, Confidence, or Audit
// simply skips that stage; a nil Registry skips the expiry check and
// denies every request that reaches policy evaluation with "no policy
// configured".
type Config struct {
	Registry    PolicyResolver
	Validators  *validate.Pipeline
	RateLimiter *ratelimit.Limiter
	Quota       *quota.Manager
	Breaker     *breaker.Breaker
	KillSwitch  *oversight.KillSwitch
	Approval    *oversight.ApprovalWorkflow
	Confidence  *oversight.ConfidenceEscalation
	Audit       *audit.FanOut

	// Now overrides the wall clock for duration measurement and request
	// timestamping; defaults to time.Now.
	Now func() time.Time
}

// Engine is the composed governance pipeline. One Engine instance is
// shared across all concurrent callers; Evaluate is re-entrant.
type Engine struct {
	cfg Config
	now func() time.Time
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{cfg: cfg, now: now}
}

// Evaluate runs a request through the full pipeline and returns a
// terminal decision. It is synchronous, never blocks indefinitely beyond
// the configured timeouts of its delegating policy/sinks, and always
// submits exactly one audit record per configured sink before returning.
func (e *Engine) Evaluate(req model.GovernanceRequest) model.GovernanceDecision {
	start := e.now()
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = start
	}

	dec, source := e.run(req)

	duration := e.now().Sub(start)
	if e.cfg.Audit != nil {
		e.cfg.Audit.Log(model.NewAuditRecord(req, dec, source, duration))
	}
	return dec
}

// RecordOutcome reports the caller's post-execution success/failure for
// tool back to the breaker. Callers MUST invoke this after actually
// executing a tool the engine allowed.
func (e *Engine) RecordOutcome(tool string, ok bool) {
	if e.cfg.Breaker == nil {
		return
	}
	if ok {
		e.cfg.Breaker.RecordSuccess(tool)
	} else {
		e.cfg.Breaker.RecordFailure(tool)
	}
}

// run executes the ordered pipeline stages of §4.1 and returns the
// terminal decision along with a short label identifying which stage
// produced it, for the audit record's decision_source field.
func (e *Engine) run(req model.GovernanceRequest) (model.GovernanceDecision, string) {
	// 1. Kill-switch gate.
	if e.cfg.KillSwitch != nil {
		if active, _, reason, _ := e.cfg.KillSwitch.Status(); active {
			return model.Deny("kill-switch active: " + reason), "kill_switch"
		}
	}

	// 2. Intent validation.
	if e.cfg.Validators != nil {
		res, err := e.safeValidate(req)
		if err != nil {
			log.Error().Err(err).Str("agent", req.AgentID).Str("tool", req.ToolName).
				Msg("engine: validator raised an internal error")
			return model.Deny("internal: validation"), "internal_error"
		}
		if !res.Valid {
			return model.Deny("validation: " + res.Reason), "validation"
		}
	}

	// 3. Rate limit.
	if e.cfg.RateLimiter != nil && !e.cfg.RateLimiter.CheckLimit(req.AgentID, req.ToolName) {
		return model.Deny("rate limit exceeded"), "rate_limit"
	}

	// 4. Quota. Consumed unconditionally once validation and rate-limit
	// pass, regardless of the eventual policy outcome (§4.1 step 4, §9
	// open question — "consumed unconditionally" is the resolution this
	// implementation takes).
	if e.cfg.Quota != nil && !e.cfg.Quota.Consume(req.AgentID) {
		return model.Deny("quota exceeded"), "quota"
	}

	// 5. Circuit-breaker precheck.
	if e.cfg.Breaker != nil && e.cfg.Breaker.IsOpen(req.ToolName) {
		return model.Deny("circuit open"), "breaker"
	}

	// 6. Policy evaluation, including the expired-tool check the tool
	// registry owns (invariant 3: an expired tool produces an audited
	// denial rather than a silent absence, §9 open question resolution).
	if e.cfg.Registry != nil && e.cfg.Registry.ToolExpired(req.ToolName) {
		return model.Deny("tool expired"), "registry"
	}

	dec, err := e.safeEvaluatePolicy(req)
	if err != nil {
		log.Error().Err(err).Str("agent", req.AgentID).Str("tool", req.ToolName).
			Msg("engine: policy raised an internal error")
		return model.Deny("internal: policy"), "internal_error"
	}
	if !dec.Allow {
		return dec, "policy"
	}

	// 7. Approval gate: a matching high-risk request, even when policy
	// allows, is parked pending human sign-off instead of executing.
	if e.cfg.Approval != nil && e.cfg.Approval.RequiresApproval(req) {
		ticket := e.cfg.Approval.RequestApproval(req, "high_risk")
		return model.Deny("awaiting approval").WithMetadata("approval_id", ticket.ID), "approval"
	}

	// 8. Confidence escalation, on allow decisions only.
	if e.cfg.Confidence != nil {
		if confidence, ok := req.Context.Confidence(); ok {
			level := e.cfg.Confidence.Classify(confidence)
			if oversight.RequiresHuman(level) {
				if e.cfg.Approval != nil {
					ticket := e.cfg.Approval.RequestApproval(req, string(level))
					return model.Deny("awaiting approval").
						WithMetadata("approval_id", ticket.ID).
						WithMetadata("escalation_level", string(level)), "confidence_escalation"
				}
				return model.Deny("awaiting approval").
					WithMetadata("escalation_level", string(level)), "confidence_escalation"
			}
		}
	}

	return dec, "policy"
}

// safeValidate recovers from a panicking validator and reports it the
// same way an error return is reported, so a programmer error in a
// caller-supplied Custom validator cannot crash the process.
func (e *Engine) safeValidate(req model.GovernanceRequest) (res validate.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return e.cfg.Validators.Run(req)
}

// safeEvaluatePolicy resolves the effective policy for the request and
// evaluates it, recovering from a panic the same way safeValidate does.
func (e *Engine) safeEvaluatePolicy(req model.GovernanceRequest) (dec model.GovernanceDecision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	if e.cfg.Registry == nil {
		return model.Deny("no policy configured"), nil
	}
	pol := e.cfg.Registry.GetPolicyForTool(req.ToolName, req.AgentID)
	if pol == nil {
		return model.Deny("no policy configured"), nil
	}
	return pol.Evaluate(req)
}
