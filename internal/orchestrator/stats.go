package orchestrator

import (
	"sync/atomic"
	"time"
)

// PluginStats accumulates dispatch accounting for one plugin, grounded
// on the teacher's PluginStats/StatsSnapshot in internal/plugin/sandbox.go,
// narrowed to the counters this host's dispatch path actually produces
// (no DB/cache/HTTP counters: those belong to a plugin's own bookkeeping,
// not the host's).
type PluginStats struct {
	Calls      atomic.Int64
	Errors     atomic.Int64
	RateLimited atomic.Int64
	LastCallAt atomic.Int64 // unix millis
}

// StatsSnapshot is a point-in-time copy of PluginStats, safe to
// marshal or hand to an admin surface.
type StatsSnapshot struct {
	PluginID    string `json:"plugin_id"`
	Calls       int64  `json:"calls"`
	Errors      int64  `json:"errors"`
	RateLimited int64  `json:"rate_limited"`
	LastCallAt  int64  `json:"last_call_at"`
}

func (s *PluginStats) snapshot(pluginID string) StatsSnapshot {
	return StatsSnapshot{
		PluginID:    pluginID,
		Calls:       s.Calls.Load(),
		Errors:      s.Errors.Load(),
		RateLimited: s.RateLimited.Load(),
		LastCallAt:  s.LastCallAt.Load(),
	}
}

func (o *Orchestrator) statsFor(pluginID string) *PluginStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.stats[pluginID]
	if !ok {
		s = &PluginStats{}
		o.stats[pluginID] = s
	}
	return s
}

// Stats returns pluginID's dispatch accounting snapshot, and whether any
// calls have been recorded for it yet.
func (o *Orchestrator) Stats(pluginID string) (StatsSnapshot, bool) {
	o.mu.Lock()
	s, ok := o.stats[pluginID]
	o.mu.Unlock()
	if !ok {
		return StatsSnapshot{}, false
	}
	return s.snapshot(pluginID), true
}

// AllStats returns a snapshot for every plugin that has ever been
// dispatched to.
func (o *Orchestrator) AllStats() []StatsSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]StatsSnapshot, 0, len(o.stats))
	for id, s := range o.stats {
		out = append(out, s.snapshot(id))
	}
	return out
}

func nowMillis() int64 { return time.Now().UnixMilli() }
