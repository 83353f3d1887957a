// Package ratelimit implements a per-(agent, tool) token bucket, refilled
// lazily on check rather than by a background ticker.
package ratelimit

import (
	"sync"
	"time"
)

// bucketKey identifies one rate-limiter bucket.
type bucketKey struct {
	agent string
	tool  string
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Config is the rate-limit configuration shared by every (agent, tool)
// bucket of a Limiter.
type Config struct {
	MaxPerMinute float64
	BurstSize    float64
}

// Limiter holds one token bucket per (agent, tool) pair observed so far.
// Buckets are created lazily on first reference and live for the process,
// per spec §3 lifecycle notes.
type Limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	cfg     Config
	now     func() time.Time
}

// New builds a Limiter sharing one Config across all keys. Per-tool
// overrides can be layered by the caller constructing one Limiter per
// tool tier if needed; the spec does not require per-tool configs beyond
// the global max_per_minute/burst_size.
func New(cfg Config) *Limiter {
	return &Limiter{
		buckets: make(map[bucketKey]*bucket),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (l *Limiter) bucketFor(agent, tool string) *bucket {
	key := bucketKey{agent: agent, tool: tool}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.BurstSize, lastRefill: l.now()}
		l.buckets[key] = b
	}
	return b
}

// refillLocked applies lazy refill to b; caller must hold b.mu.
func (l *Limiter) refillLocked(b *bucket) {
	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rate := l.cfg.MaxPerMinute / 60.0
	if refilled := b.tokens + elapsed*rate; refilled < l.cfg.BurstSize {
		b.tokens = refilled
	} else {
		b.tokens = l.cfg.BurstSize
	}
	b.lastRefill = now
}

// CheckLimit refills the (agent, tool) bucket, then consumes one token
// and returns true if tokens >= 1, else returns false without consuming.
func (l *Limiter) CheckLimit(agent, tool string) bool {
	b := l.bucketFor(agent, tool)

	b.mu.Lock()
	defer b.mu.Unlock()

	l.refillLocked(b)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// GetRemaining returns the floor of the current token count for
// (agent, tool), refilling first.
func (l *Limiter) GetRemaining(agent, tool string) int {
	b := l.bucketFor(agent, tool)

	b.mu.Lock()
	defer b.mu.Unlock()

	l.refillLocked(b)
	return int(b.tokens)
}

// Reset clears the bucket for (agent, tool), as if it had never been
// referenced.
func (l *Limiter) Reset(agent, tool string) {
	key := bucketKey{agent: agent, tool: tool}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
