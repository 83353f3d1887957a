// Package registry implements the tool and agent-group registry: storage
// for tool entries and groups, access-list checks, and the three-tier
// policy resolution algorithm (tool policy > agent policy > group
// policies > none).
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/adriacb/enact/internal/model"
	"github.com/adriacb/enact/internal/policy"
)

// Registry holds tools, groups, and per-agent policy overrides. All
// mutation methods acquire the single registry mutex; entries themselves
// are treated as immutable once registered (replace, don't mutate in
// place) so readers never observe a partially-updated ToolEntry.
type Registry struct {
	mu           sync.RWMutex
	tools        map[string]*model.ToolEntry
	groups       map[string]*model.AgentGroup
	groupOrder   []string // insertion order, for deterministic group-policy precedence
	agentMembers map[string]map[string]struct{} // agent_id -> set of group names
	agentPolicy  map[string]model.Policy
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		tools:        make(map[string]*model.ToolEntry),
		groups:       make(map[string]*model.AgentGroup),
		agentMembers: make(map[string]map[string]struct{}),
		agentPolicy:  make(map[string]model.Policy),
	}
}

// RegisterTool adds a new tool entry. Registering a name that already
// exists is a programmer error and returns an error rather than silently
// overwriting, per invariant 1 (tool names unique within a registry).
func (r *Registry) RegisterTool(entry model.ToolEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[entry.Name]; exists {
		return fmt.Errorf("registry: tool %q already registered", entry.Name)
	}
	cp := entry
	r.tools[entry.Name] = &cp
	return nil
}

// CreateGroup adds a new agent group. Duplicate names are a programmer
// error, per invariant 1.
func (r *Registry) CreateGroup(name string, pol model.Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[name]; exists {
		return fmt.Errorf("registry: group %q already registered", name)
	}
	r.groups[name] = &model.AgentGroup{Name: name, Policy: pol, Members: make(map[string]struct{})}
	r.groupOrder = append(r.groupOrder, name)
	return nil
}

// AddAgentToGroup adds agentID to the named group's membership.
func (r *Registry) AddAgentToGroup(agentID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[group]
	if !ok {
		return fmt.Errorf("registry: unknown group %q", group)
	}
	g.Members[agentID] = struct{}{}

	if r.agentMembers[agentID] == nil {
		r.agentMembers[agentID] = make(map[string]struct{})
	}
	r.agentMembers[agentID][group] = struct{}{}
	return nil
}

// SetAgentPolicy installs an agent-specific policy override, the second
// tier of the resolution precedence.
func (r *Registry) SetAgentPolicy(agentID string, pol model.Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agentPolicy[agentID] = pol
}

// GetTool resolves a tool handle for the given agent, honoring expiry and
// the access list. It returns ok=false (absent) if the tool does not
// exist, has expired (invariant 3), or the agent is not authorized.
func (r *Registry) GetTool(name, agentID string) (handle any, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.tools[name]
	if !exists {
		return nil, false
	}
	if entry.Expired(time.Now()) {
		return nil, false
	}
	if !r.authorizedLocked(entry, agentID) {
		return nil, false
	}
	return entry.Handle, true
}

// ToolExpired reports whether the named tool exists and has expired; the
// engine uses this to distinguish "unknown tool" from "expired tool" when
// deciding the audited denial reason.
func (r *Registry) ToolExpired(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, exists := r.tools[name]
	return exists && entry.Expired(time.Now())
}

func (r *Registry) authorizedLocked(entry *model.ToolEntry, agentID string) bool {
	if entry.Public() {
		return true
	}
	if _, ok := entry.AllowedAgents[agentID]; ok {
		return true
	}
	for group := range entry.AllowedGroups {
		if _, member := r.agentMembers[agentID][group]; member {
			return true
		}
	}
	return false
}

// ListToolsForAgent returns the names of every non-expired tool the agent
// can access, in no particular order.
func (r *Registry) ListToolsForAgent(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	names := make([]string, 0, len(r.tools))
	for name, entry := range r.tools {
		if entry.Expired(now) {
			continue
		}
		if r.authorizedLocked(entry, agentID) {
			names = append(names, name)
		}
	}
	return names
}

// GetPolicyForTool resolves the effective policy for (tool, agent)
// following the three-tier precedence of §4.9: (1) the tool's own
// policy, (2) the agent's policy override, (3) the concatenation (if all
// RuleBased) or first-non-nil (otherwise) of the agent's group policies
// in insertion order, (4) nil if nothing applies.
func (r *Registry) GetPolicyForTool(tool, agentID string) model.Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.tools[tool]; ok && entry.Policy != nil {
		return entry.Policy
	}

	if pol, ok := r.agentPolicy[agentID]; ok && pol != nil {
		return pol
	}

	return r.resolveGroupPolicyLocked(agentID)
}

// resolveGroupPolicyLocked implements tier 3: concatenate RuleBased group
// policies in group-insertion order when every group policy is
// RuleBased; otherwise return the first non-nil group policy by
// insertion order (§9 open question — concatenation is this
// implementation's chosen behavior, recorded in DESIGN.md).
func (r *Registry) resolveGroupPolicyLocked(agentID string) model.Policy {
	groupNames := r.orderedGroupNamesLocked()

	var candidates []model.Policy
	for _, name := range groupNames {
		if _, member := r.agentMembers[agentID][name]; !member {
			continue
		}
		g := r.groups[name]
		if g.Policy != nil {
			candidates = append(candidates, g.Policy)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	allRuleBased := true
	ruleBased := make([]*policy.RuleBased, 0, len(candidates))
	for _, c := range candidates {
		rb, ok := c.(*policy.RuleBased)
		if !ok {
			allRuleBased = false
			break
		}
		ruleBased = append(ruleBased, rb)
	}

	if allRuleBased {
		return policy.Concat(ruleBased...)
	}
	return candidates[0]
}

// orderedGroupNamesLocked returns group names in creation order. Go maps
// have no iteration order, so insertion order is tracked separately by
// groupOrder; groups created via CreateGroup are appended there.
func (r *Registry) orderedGroupNamesLocked() []string {
	names := make([]string, 0, len(r.groups))
	for _, name := range r.groupOrder {
		if _, ok := r.groups[name]; ok {
			names = append(names, name)
		}
	}
	return names
}
