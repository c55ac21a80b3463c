// Package ratelimit gives each loaded plugin an independent token-bucket
// limiter on invoke_command dispatch: without some bound, one runaway
// plugin command loop could starve the dispatcher for every other
// plugin. Grounded on the teacher's
// internal/middleware.RateLimiter (per-key token bucket with lazy
// refill) and solaius-kf-reg's per-plugin bucket keying, narrowed to a
// per-second refill rate instead of per-hour since dispatch calls are
// expected far more often than HTTP requests.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter holds one token bucket per plugin id.
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	defaultRate  float64 // tokens per second
	defaultBurst float64 // bucket capacity
}

type bucket struct {
	tokens     float64
	limit      float64
	refillRate float64
	lastRefill time.Time
}

// New builds a Limiter whose buckets default to ratePerSecond/burst
// unless overridden per plugin via SetLimit.
func New(ratePerSecond, burst int) *Limiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 50
	}
	if burst <= 0 {
		burst = ratePerSecond
	}
	return &Limiter{
		buckets:      make(map[string]*bucket),
		defaultRate:  float64(ratePerSecond),
		defaultBurst: float64(burst),
	}
}

// SetLimit overrides pluginID's rate/burst, replacing its bucket with a
// freshly-filled one at the new capacity, so the change takes effect on
// the next dispatch.
func (l *Limiter) SetLimit(pluginID string, ratePerSecond, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets[pluginID] = &bucket{
		tokens:     float64(burst),
		limit:      float64(burst),
		refillRate: float64(ratePerSecond),
		lastRefill: time.Now(),
	}
}

// Allow reports whether pluginID may dispatch now, consuming a token if
// so.
func (l *Limiter) Allow(pluginID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[pluginID]
	if !ok {
		b = &bucket{tokens: l.defaultBurst, limit: l.defaultBurst, refillRate: l.defaultRate, lastRefill: time.Now()}
		l.buckets[pluginID] = b
	}

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.limit {
		b.tokens = b.limit
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the current token count for pluginID, for
// diagnostics; zero if the plugin has never dispatched.
func (l *Limiter) Remaining(pluginID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[pluginID]; ok {
		return int(b.tokens)
	}
	return 0
}

// Reset drops pluginID's bucket, letting it start fresh on next use —
// called when a plugin is unloaded so a future reinstall under the same
// id doesn't inherit a drained bucket.
func (l *Limiter) Reset(pluginID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, pluginID)
}
