// Package breaker implements a per-tool circuit breaker state machine
// with CLOSED, OPEN, and HALF_OPEN states.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three breaker states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Config is the per-tool breaker configuration.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

type circuit struct {
	mu       sync.Mutex
	state    State
	failures int
	successes int
	openedAt time.Time
}

// Breaker holds one circuit per tool, created lazily on first reference.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	cfg      Config
	now      func() time.Time
}

// New builds a Breaker sharing one Config across all tools.
func New(cfg Config) *Breaker {
	return &Breaker{
		circuits: make(map[string]*circuit),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (b *Breaker) circuitFor(tool string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[tool]
	if !ok {
		c = &circuit{state: Closed}
		b.circuits[tool] = c
	}
	return c
}

// IsOpen reports whether the tool's breaker currently blocks calls. A
// breaker in OPEN whose timeout has elapsed transitions to HALF_OPEN as a
// side effect of this call and returns false (admitting a single probe),
// per spec §4.5. Reading breaker state never fails; an uninitialized
// circuit reads as CLOSED (fail-open for state reads, per §4.1).
func (b *Breaker) IsOpen(tool string) bool {
	c := b.circuitFor(tool)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Open {
		return false
	}
	if b.now().Sub(c.openedAt) >= b.cfg.Timeout {
		c.state = HalfOpen
		c.successes = 0
		return false
	}
	return true
}

// State returns the current state without mutating it.
func (b *Breaker) State(tool string) State {
	c := b.circuitFor(tool)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RecordSuccess reports a successful call. In HALF_OPEN, reaching
// SuccessThreshold closes the circuit and zeroes counters; in CLOSED it
// simply resets the failure count.
func (b *Breaker) RecordSuccess(tool string) {
	c := b.circuitFor(tool)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case HalfOpen:
		c.successes++
		if c.successes >= b.cfg.SuccessThreshold {
			c.state = Closed
			c.failures = 0
			c.successes = 0
		}
	case Closed:
		c.failures = 0
	case Open:
		// a success while still OPEN (e.g. a race with the timeout check)
		// does not itself reopen or close; the next IsOpen call governs.
	}
}

// RecordFailure reports a failed call. In CLOSED, reaching
// FailureThreshold opens the circuit and records openedAt. Any failure in
// HALF_OPEN reopens the circuit immediately.
func (b *Breaker) RecordFailure(tool string) {
	c := b.circuitFor(tool)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		c.failures++
		if c.failures >= b.cfg.FailureThreshold {
			c.state = Open
			c.openedAt = b.now()
			c.failures = 0
		}
	case HalfOpen:
		c.state = Open
		c.openedAt = b.now()
		c.successes = 0
	case Open:
		c.openedAt = b.now()
	}
}

// Reset returns the tool's circuit to CLOSED with zeroed counters.
func (b *Breaker) Reset(tool string) {
	c := b.circuitFor(tool)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Closed
	c.failures = 0
	c.successes = 0
}
