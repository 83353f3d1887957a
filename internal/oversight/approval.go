package oversight

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adriacb/enact/internal/model"
)

// TicketStatus is the lifecycle state of an approval ticket.
type TicketStatus string

const (
	Pending  TicketStatus = "PENDING"
	Approved TicketStatus = "APPROVED"
	Rejected TicketStatus = "REJECTED"
)

// Ticket is a pending (or decided) request for human authorization.
type Ticket struct {
	ID            string
	AgentID       string
	Tool          string
	Function      string
	Arguments     model.Args
	Justification string
	RiskLevel     string
	Status        TicketStatus
	Approver      string
	DecidedAt     *time.Time
}

// ApprovalWorkflow holds pending and decided tickets, and the high-risk
// matching rules that determine which requests need one.
type ApprovalWorkflow struct {
	mu                sync.Mutex
	tickets           map[string]*Ticket
	highRiskTools     map[string]struct{}
	highRiskFunctions []*regexp.Regexp
	onNotify          func(t *Ticket)
}

// NewApprovalWorkflow builds a workflow matching the given high-risk tool
// names and function-name regexes. onNotify, if non-nil, is invoked
// synchronously whenever a new ticket is created.
func NewApprovalWorkflow(highRiskTools []string, highRiskFunctions []*regexp.Regexp, onNotify func(t *Ticket)) *ApprovalWorkflow {
	set := make(map[string]struct{}, len(highRiskTools))
	for _, t := range highRiskTools {
		set[t] = struct{}{}
	}
	return &ApprovalWorkflow{
		tickets:           make(map[string]*Ticket),
		highRiskTools:     set,
		highRiskFunctions: highRiskFunctions,
		onNotify:          onNotify,
	}
}

// RequiresApproval reports whether a request matches the high-risk set:
// its tool is listed, or its function name matches any high-risk
// function pattern.
func (w *ApprovalWorkflow) RequiresApproval(req model.GovernanceRequest) bool {
	if _, ok := w.highRiskTools[req.ToolName]; ok {
		return true
	}
	for _, re := range w.highRiskFunctions {
		if re.MatchString(req.FunctionName) {
			return true
		}
	}
	return false
}

// RequestApproval creates a new PENDING ticket for the request, invokes
// the notification callback, and returns it.
func (w *ApprovalWorkflow) RequestApproval(req model.GovernanceRequest, riskLevel string) *Ticket {
	justification, _ := req.Context.Justification()

	t := &Ticket{
		ID:            uuid.NewString(),
		AgentID:       req.AgentID,
		Tool:          req.ToolName,
		Function:      req.FunctionName,
		Arguments:     req.Arguments,
		Justification: justification,
		RiskLevel:     riskLevel,
		Status:        Pending,
	}

	w.mu.Lock()
	w.tickets[t.ID] = t
	w.mu.Unlock()

	if w.onNotify != nil {
		w.onNotify(t)
	}
	return t
}

// Approve marks a PENDING ticket APPROVED. Deciding an already-decided
// ticket fails with an error rather than overwriting the prior decision.
func (w *ApprovalWorkflow) Approve(id, approver string) (*Ticket, error) {
	return w.decide(id, approver, Approved)
}

// Reject marks a PENDING ticket REJECTED.
func (w *ApprovalWorkflow) Reject(id, approver string) (*Ticket, error) {
	return w.decide(id, approver, Rejected)
}

func (w *ApprovalWorkflow) decide(id, approver string, status TicketStatus) (*Ticket, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.tickets[id]
	if !ok {
		return nil, fmt.Errorf("approval ticket %q not found", id)
	}
	if t.Status != Pending {
		return nil, fmt.Errorf("approval ticket %q: already decided", id)
	}

	now := time.Now()
	t.Status = status
	t.Approver = approver
	t.DecidedAt = &now
	return t, nil
}

// Get returns a ticket by id.
func (w *ApprovalWorkflow) Get(id string) (*Ticket, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tickets[id]
	return t, ok
}
