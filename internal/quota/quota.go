// Package quota implements a per-agent rolling-window action counter.
package quota

import (
	"sync"
	"time"
)

// Config is a per-agent quota configuration.
type Config struct {
	MaxActions  int
	WindowHours float64
}

type window struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// Manager tracks one rolling window per agent. Memory per active agent is
// bounded by its MaxActions, per spec §4.4.
type Manager struct {
	mu       sync.Mutex
	windows  map[string]*window
	cfg      map[string]Config
	defaults Config
	now      func() time.Time
}

// New builds a Manager with the given default quota config, applied to
// any agent without a SetQuota override.
func New(defaults Config) *Manager {
	return &Manager{
		windows:  make(map[string]*window),
		cfg:      make(map[string]Config),
		defaults: defaults,
		now:      time.Now,
	}
}

// SetQuota installs a per-agent override.
func (m *Manager) SetQuota(agent string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg[agent] = cfg
}

func (m *Manager) configFor(agent string) Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.cfg[agent]; ok {
		return cfg
	}
	return m.defaults
}

func (m *Manager) windowFor(agent string) *window {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[agent]
	if !ok {
		w = &window{}
		m.windows[agent] = w
	}
	return w
}

// Consume prunes entries older than now-window, and if the remaining
// count is below MaxActions, records this action and returns true; else
// returns false without recording.
func (m *Manager) Consume(agent string) bool {
	cfg := m.configFor(agent)
	w := m.windowFor(agent)
	now := m.now()
	cutoff := now.Add(-time.Duration(cfg.WindowHours * float64(time.Hour)))

	w.mu.Lock()
	defer w.mu.Unlock()

	pruned := w.timestamps[:0]
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	w.timestamps = pruned

	if len(w.timestamps) >= cfg.MaxActions {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// Remaining reports how many actions the agent may still take within the
// current window, counting only entries newer than now-window; it does
// not prune the stored entries.
func (m *Manager) Remaining(agent string) int {
	cfg := m.configFor(agent)
	w := m.windowFor(agent)
	now := m.now()
	cutoff := now.Add(-time.Duration(cfg.WindowHours * float64(time.Hour)))

	w.mu.Lock()
	defer w.mu.Unlock()

	count := 0
	for _, t := range w.timestamps {
		if t.After(cutoff) {
			count++
		}
	}
	remaining := cfg.MaxActions - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset clears the agent's window.
func (m *Manager) Reset(agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, agent)
}
