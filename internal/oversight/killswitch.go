// Package oversight implements the human-in-the-loop side channels: a
// process-scoped kill-switch, an approval-ticket workflow, and
// confidence-based escalation.
package oversight

import (
	"sync"
	"time"
)

// KillSwitch is a process-scoped emergency halt. It is modeled as a state
// object supplied by the composition root rather than a true package-level
// singleton, so tests can inject fresh instances (§9 design notes).
type KillSwitch struct {
	mu          sync.Mutex
	active      bool
	activatedBy string
	activatedAt time.Time
	reason      string
	onChange    func(active bool, reason string)
}

// NewKillSwitch builds an inactive kill-switch. onChange, if non-nil, is
// invoked synchronously on every activate/deactivate call, including
// idempotent no-op calls.
func NewKillSwitch(onChange func(active bool, reason string)) *KillSwitch {
	return &KillSwitch{onChange: onChange}
}

// Activate turns the switch on, recording who did it and why. Idempotent:
// calling it while already active updates the recorded reason/activator
// and still fires the callback.
func (k *KillSwitch) Activate(activatedBy, reason string) {
	k.mu.Lock()
	k.active = true
	k.activatedBy = activatedBy
	k.activatedAt = time.Now()
	k.reason = reason
	k.mu.Unlock()

	if k.onChange != nil {
		k.onChange(true, reason)
	}
}

// Deactivate turns the switch off. Idempotent: calling it while already
// inactive is a no-op besides firing the callback.
func (k *KillSwitch) Deactivate() {
	k.mu.Lock()
	k.active = false
	k.reason = ""
	k.activatedBy = ""
	k.mu.Unlock()

	if k.onChange != nil {
		k.onChange(false, "")
	}
}

// Active reports whether the switch is currently on.
func (k *KillSwitch) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// Status returns the full current state.
func (k *KillSwitch) Status() (active bool, activatedBy, reason string, activatedAt time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active, k.activatedBy, k.reason, k.activatedAt
}
