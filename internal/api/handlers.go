package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/adriacb/enact/internal/breaker"
	"github.com/adriacb/enact/internal/engine"
	"github.com/adriacb/enact/internal/model"
	"github.com/adriacb/enact/internal/oversight"
	"github.com/adriacb/enact/internal/quota"
	"github.com/adriacb/enact/internal/ratelimit"
	"github.com/adriacb/enact/internal/registry"
	pgregistry "github.com/adriacb/enact/internal/registry/postgres"
)

// Handlers binds the governance engine and its constituent subsystems to
// HTTP request/response shapes.
type Handlers struct {
	Engine     *engine.Engine
	Registry   *registry.Registry
	RateLimit  *ratelimit.Limiter
	Quota      *quota.Manager
	Breaker    *breaker.Breaker
	KillSwitch *oversight.KillSwitch
	Approval   *oversight.ApprovalWorkflow

	// DB, if set, makes RegisterTool durable: tool metadata is upserted
	// into the tools table so it survives past a restart via
	// pgregistry.LoadRegistry. Optional; a nil DB keeps the registry
	// in-memory only, as it is without a configured database.
	DB *pgregistry.DB
}

type evaluateRequest struct {
	AgentID       string        `json:"agent_id" binding:"required"`
	ToolName      string        `json:"tool_name" binding:"required"`
	FunctionName  string        `json:"function_name"`
	Arguments     model.Args    `json:"arguments"`
	Context       model.Context `json:"context"`
	CorrelationID string        `json:"correlation_id"`
}

// Evaluate runs a governance request through the engine and returns its
// decision.
func (h *Handlers) Evaluate(c *gin.Context) {
	var in evaluateRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := model.GovernanceRequest{
		AgentID:       in.AgentID,
		ToolName:      in.ToolName,
		FunctionName:  in.FunctionName,
		Arguments:     in.Arguments,
		Context:       in.Context,
		CorrelationID: in.CorrelationID,
	}

	dec := h.Engine.Evaluate(req)
	c.JSON(http.StatusOK, dec)
}

type outcomeRequest struct {
	ToolName string `json:"tool_name" binding:"required"`
	Success  bool   `json:"success"`
}

// RecordOutcome reports a tool call's post-execution result back to the
// breaker, the caller-side half of the Evaluate/RecordOutcome contract.
func (h *Handlers) RecordOutcome(c *gin.Context) {
	var in outcomeRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Engine.RecordOutcome(in.ToolName, in.Success)
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

// ListTools returns the tools the given agent_id can currently reach.
func (h *Handlers) ListTools(c *gin.Context) {
	if h.Registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry not configured"})
		return
	}
	agentID := c.Query("agent_id")
	c.JSON(http.StatusOK, gin.H{"tools": h.Registry.ListToolsForAgent(agentID)})
}

type registerToolRequest struct {
	Name          string     `json:"name" binding:"required"`
	AllowedAgents []string   `json:"allowed_agents"`
	AllowedGroups []string   `json:"allowed_groups"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// RegisterTool adds a new tool entry to the registry.
func (h *Handlers) RegisterTool(c *gin.Context) {
	if h.Registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registry not configured"})
		return
	}
	var in registerToolRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := model.ToolEntry{
		Name:      in.Name,
		ExpiresAt: in.ExpiresAt,
	}
	if len(in.AllowedAgents) > 0 {
		entry.AllowedAgents = toSet(in.AllowedAgents)
	}
	if len(in.AllowedGroups) > 0 {
		entry.AllowedGroups = toSet(in.AllowedGroups)
	}

	if err := h.Registry.RegisterTool(entry); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	if h.DB != nil {
		if err := pgregistry.UpsertTool(c.Request.Context(), h.DB, entry); err != nil {
			log.Error().Err(err).Str("tool", entry.Name).Msg("persisting registered tool to database failed")
		}
	}

	c.JSON(http.StatusCreated, gin.H{"status": "registered"})
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// RateLimitStatus reports the remaining burst allowance for an agent/tool
// pair.
func (h *Handlers) RateLimitStatus(c *gin.Context) {
	if h.RateLimit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter not configured"})
		return
	}
	agent, tool := c.Param("agent_id"), c.Param("tool")
	c.JSON(http.StatusOK, gin.H{"remaining": h.RateLimit.GetRemaining(agent, tool)})
}

// RateLimitReset clears the bucket for an agent/tool pair.
func (h *Handlers) RateLimitReset(c *gin.Context) {
	if h.RateLimit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter not configured"})
		return
	}
	agent, tool := c.Param("agent_id"), c.Param("tool")
	h.RateLimit.Reset(agent, tool)
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// QuotaStatus reports the remaining quota for an agent within its current
// window.
func (h *Handlers) QuotaStatus(c *gin.Context) {
	if h.Quota == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quota manager not configured"})
		return
	}
	agent := c.Param("agent_id")
	c.JSON(http.StatusOK, gin.H{"remaining": h.Quota.Remaining(agent)})
}

// QuotaReset clears an agent's quota window.
func (h *Handlers) QuotaReset(c *gin.Context) {
	if h.Quota == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quota manager not configured"})
		return
	}
	h.Quota.Reset(c.Param("agent_id"))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// BreakerStatus reports a tool's current circuit-breaker state.
func (h *Handlers) BreakerStatus(c *gin.Context) {
	if h.Breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "breaker not configured"})
		return
	}
	tool := c.Param("tool")
	c.JSON(http.StatusOK, gin.H{"tool": tool, "state": h.Breaker.State(tool)})
}

// BreakerReset forces a tool's circuit back to CLOSED.
func (h *Handlers) BreakerReset(c *gin.Context) {
	if h.Breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "breaker not configured"})
		return
	}
	h.Breaker.Reset(c.Param("tool"))
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

type killSwitchRequest struct {
	ActivatedBy string `json:"activated_by" binding:"required"`
	Reason      string `json:"reason" binding:"required"`
}

// KillSwitchActivate turns the kill-switch on, denying every request
// until deactivated.
func (h *Handlers) KillSwitchActivate(c *gin.Context) {
	if h.KillSwitch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "kill switch not configured"})
		return
	}
	var in killSwitchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.KillSwitch.Activate(in.ActivatedBy, in.Reason)
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

// KillSwitchDeactivate turns the kill-switch off.
func (h *Handlers) KillSwitchDeactivate(c *gin.Context) {
	if h.KillSwitch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "kill switch not configured"})
		return
	}
	h.KillSwitch.Deactivate()
	c.JSON(http.StatusOK, gin.H{"status": "inactive"})
}

// KillSwitchStatus reports the kill-switch's current state.
func (h *Handlers) KillSwitchStatus(c *gin.Context) {
	if h.KillSwitch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "kill switch not configured"})
		return
	}
	active, activatedBy, reason, activatedAt := h.KillSwitch.Status()
	c.JSON(http.StatusOK, gin.H{
		"active":       active,
		"activated_by": activatedBy,
		"reason":       reason,
		"activated_at": activatedAt,
	})
}

// GetApproval returns an approval ticket by id.
func (h *Handlers) GetApproval(c *gin.Context) {
	if h.Approval == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "approval workflow not configured"})
		return
	}
	t, ok := h.Approval.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

type approvalDecisionRequest struct {
	Approver string `json:"approver" binding:"required"`
}

// ApproveApproval marks a pending ticket APPROVED.
func (h *Handlers) ApproveApproval(c *gin.Context) {
	h.decideApproval(c, h.Approval.Approve)
}

// RejectApproval marks a pending ticket REJECTED.
func (h *Handlers) RejectApproval(c *gin.Context) {
	h.decideApproval(c, h.Approval.Reject)
}

func (h *Handlers) decideApproval(c *gin.Context, decide func(id, approver string) (*oversight.Ticket, error)) {
	if h.Approval == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "approval workflow not configured"})
		return
	}
	var in approvalDecisionRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := decide(c.Param("id"), in.Approver)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}
