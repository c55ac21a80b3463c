package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hourglassapp/hourglass/internal/hostapi"
	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/loader"
	"github.com/hourglassapp/hourglass/internal/metrics"
	"github.com/hourglassapp/hourglass/internal/ratelimit"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// pluginRecord is the Orchestrator's bookkeeping for one discovered
// plugin across its whole lifetime, mirroring the shape of goatflow's
// registeredPlugin (plugin + manifest + enabled) generalized with a
// richer state machine.
type pluginRecord struct {
	manifest pluginapi.Manifest
	dir      string

	state   State
	handle  loader.Handle
	failure *FailedPlugin
}

// Orchestrator is the Orchestrator (C6).
type Orchestrator struct {
	mu      sync.RWMutex
	host    *hostapi.Prod
	reg     *registry.Registry
	schemaE *schema.Engine
	logger  *slog.Logger

	initializeTimeout time.Duration
	shutdownTimeout   time.Duration

	plugins []string // discovery order, for Discovered()/ListAll() stability
	records map[string]*pluginRecord
	stats   map[string]*PluginStats

	limiter *ratelimit.Limiter
	metrics *metrics.Set
}

// New builds an Orchestrator over an already-constructed Host API,
// Extension Registry, and Schema Engine. m may be nil, in which case
// the process-wide metrics.Global() set is used. limiter bounds
// invoke_command dispatch per plugin (SPEC_FULL §5's supplemented
// resource policy); a nil limiter disables rate limiting entirely.
func New(host *hostapi.Prod, reg *registry.Registry, schemaE *schema.Engine, logger *slog.Logger, initializeTimeout, shutdownTimeout time.Duration, m *metrics.Set, limiter *ratelimit.Limiter) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Global()
	}
	return &Orchestrator{
		host:              host,
		reg:               reg,
		schemaE:           schemaE,
		logger:            logger,
		initializeTimeout: initializeTimeout,
		shutdownTimeout:   shutdownTimeout,
		records:           make(map[string]*pluginRecord),
		stats:             make(map[string]*PluginStats),
		limiter:           limiter,
		metrics:           m,
	}
}

// LoadAll discovers plugins under installed and drives every one of
// them through resolution and initialize, in dependency order. It
// never returns an error for an individual plugin's
// failure — those land in the failed/skipped ledger instead.
func (o *Orchestrator) LoadAll(ctx context.Context, installed []loader.InstalledPlugin, discoveryErrs []loader.DiscoveryError) {
	o.mu.Lock()
	nodes := make([]depNode, 0, len(installed))
	for _, ip := range installed {
		id := ip.Manifest.ID
		o.plugins = append(o.plugins, id)
		o.records[id] = &pluginRecord{manifest: ip.Manifest, dir: ip.Dir, state: StateDiscovered}

		edges := make([]depEdge, 0, len(ip.Manifest.Dependencies))
		for _, d := range ip.Manifest.Dependencies {
			edges = append(edges, depEdge{pluginID: d.PluginID, constraint: d.Constraint})
		}
		nodes = append(nodes, depNode{id: id, version: ip.Manifest.Version, deps: edges})
	}
	o.mu.Unlock()

	for _, de := range discoveryErrs {
		o.logger.Warn("skipping malformed plugin directory", "dir", de.Dir, "error", de.Err)
	}

	order, skippedCycle, skippedUnmet := resolveOrder(nodes)

	o.mu.Lock()
	for id := range skippedCycle {
		o.markTerminal(id, StateSkippedCycle, ReasonCycle, "participates in a dependency cycle")
	}
	for id, reason := range skippedUnmet {
		o.markTerminal(id, StateSkippedUnmet, ReasonUnmetDependency, reason)
	}
	for _, id := range order {
		o.records[id].state = StateDependenciesSatisfied
	}
	o.mu.Unlock()

	for _, id := range order {
		o.initializeOne(ctx, id)
	}
}

// markTerminal must be called with o.mu held.
func (o *Orchestrator) markTerminal(id string, state State, reason FailureReason, detail string) {
	rec, ok := o.records[id]
	if !ok {
		return
	}
	rec.state = state
	rec.failure = &FailedPlugin{PluginID: id, Reason: reason, Detail: detail, FailedAt: time.Now()}
	o.metrics.PluginsFailed.WithLabelValues(string(reason)).Inc()
}

// initializeOne drives one plugin through Opening → Initializing →
// Loaded|Failed.
func (o *Orchestrator) initializeOne(ctx context.Context, id string) {
	o.mu.Lock()
	rec := o.records[id]
	rec.state = StateInitializing
	manifest := rec.manifest
	dir := rec.dir
	o.mu.Unlock()

	if err := loader.CheckAPIVersion(hostapi.VTableVersion, manifest.Compat.APIVersion); err != nil {
		o.fail(id, StateFailed, ReasonVersionIncompatible, err.Error())
		return
	}

	libPath := dir + "/" + manifest.Backend.Library
	handle, err := loader.Open(libPath)
	if err != nil {
		o.fail(id, StateFailed, ReasonLoadFailed, err.Error())
		return
	}

	instance := handle.Instance()
	staging := o.reg.BeginStaging(id)
	view := o.host.NewInitView(id, staging)

	initErr := o.runWithTimeout(o.initializeTimeout, func() error {
		return instance.Initialize(view)
	})

	if initErr != nil {
		_ = o.destroyQuietly(id, instance, handle)
		o.reg.Discard(staging)
		reason := ReasonInitError
		if initErr == errTimedOut {
			reason = ReasonTimeout
		}
		o.fail(id, StateFailed, reason, initErr.Error())
		return
	}

	if changes := staging.StagedSchemaChanges(); len(changes) > 0 {
		if err := o.schemaE.Apply(ctx, id, changes); err != nil {
			_ = o.destroyQuietly(id, instance, handle)
			o.reg.Discard(staging)
			o.fail(id, StateFailed, ReasonInitError, "applying staged schema: "+err.Error())
			return
		}
	}

	o.reg.Commit(staging)

	o.mu.Lock()
	rec.state = StateLoaded
	rec.handle = handle
	o.mu.Unlock()
	o.metrics.PluginsLoaded.Inc()
	o.logger.Info("plugin loaded", "plugin", id, "version", manifest.Version)
}

func (o *Orchestrator) fail(id string, state State, reason FailureReason, detail string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.markTerminal(id, state, reason, detail)
	o.logger.Warn("plugin failed", "plugin", id, "reason", reason, "detail", detail)
}

func (o *Orchestrator) destroyQuietly(id string, instance pluginapi.Plugin, handle loader.Handle) error {
	defer func() { _ = recover() }()
	_ = handle.Close()
	return nil
}

var errTimedOut = hosterr.New(hosterr.Timeout, "plugin call exceeded the host's soft timeout")

// runWithTimeout runs fn on its own goroutine and enforces a soft
// timeout: if fn doesn't return in time, this call returns errTimedOut
// but the goroutine is abandoned rather than killed. This is a
// best-effort bound, not a safety boundary.
func (o *Orchestrator) runWithTimeout(budget time.Duration, fn func() error) (err error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- hosterr.New(hosterr.PluginPanicked, "plugin call panicked: %v", r)
				return
			}
		}()
		done <- fn()
	}()

	select {
	case err = <-done:
		return err
	case <-time.After(budget):
		return errTimedOut
	}
}

// Dispatch implements hostapi.Dispatcher: it routes a command to a
// Loaded plugin's InvokeCommand, satisfying call_plugin re-entrancy from
// within another plugin's own InvokeCommand. The dispatch id is not
// threaded through to the plugin as a cancellation token; it exists
// purely for log correlation.
func (o *Orchestrator) Dispatch(ctx context.Context, pluginID, command string, params []byte) ([]byte, error) {
	o.mu.Lock()
	rec, ok := o.records[pluginID]
	if !ok || (rec.state != StateLoaded && rec.state != StateInvoking) {
		o.mu.Unlock()
		o.metrics.CommandDispatchErrors.WithLabelValues(pluginID).Inc()
		return nil, hosterr.New(hosterr.DependencyUnsatisfied, "plugin %q is not loaded", pluginID)
	}
	rec.state = StateInvoking
	handle := rec.handle
	o.mu.Unlock()

	stats := o.statsFor(pluginID)

	if o.limiter != nil && !o.limiter.Allow(pluginID) {
		o.mu.Lock()
		if rec.state == StateInvoking {
			rec.state = StateLoaded
		}
		o.mu.Unlock()
		stats.RateLimited.Add(1)
		o.metrics.CommandDispatchErrors.WithLabelValues(pluginID).Inc()
		return nil, hosterr.New(hosterr.RateLimited, "plugin %q exceeded its dispatch rate limit", pluginID)
	}

	dispatchID := uuid.NewString()
	view := o.host.NewView(pluginID)

	var result json.RawMessage
	callErr := o.runWithTimeout(o.initializeTimeout, func() error {
		var err error
		result, err = handle.Instance().InvokeCommand(command, json.RawMessage(params), view)
		return err
	})

	o.mu.Lock()
	if rec.state == StateInvoking {
		rec.state = StateLoaded
	}
	o.mu.Unlock()

	stats.Calls.Add(1)
	stats.LastCallAt.Store(nowMillis())
	o.metrics.CommandDispatches.WithLabelValues(pluginID).Inc()
	if callErr != nil {
		stats.Errors.Add(1)
		o.metrics.CommandDispatchErrors.WithLabelValues(pluginID).Inc()
		o.logger.Warn("command dispatch failed", "dispatch_id", dispatchID, "plugin", pluginID, "command", command, "error", callErr)
		return nil, callErr
	}
	return result, nil
}

// ShutdownAll shuts every Loaded plugin down in reverse dependency
// order.
func (o *Orchestrator) ShutdownAll(ctx context.Context) {
	// The registry's first-commit order is the order plugins finished
	// initializing, which follows the resolved dependency order.
	committed := o.reg.CommittedPluginIDs()
	o.mu.RLock()
	loadedOrder := make([]string, 0, len(committed))
	for i := len(committed) - 1; i >= 0; i-- {
		id := committed[i]
		if rec, ok := o.records[id]; ok && rec.state == StateLoaded {
			loadedOrder = append(loadedOrder, id)
		}
	}
	o.mu.RUnlock()

	for _, id := range loadedOrder {
		o.shutdownOne(id)
	}
}

func (o *Orchestrator) shutdownOne(id string) {
	o.mu.Lock()
	rec := o.records[id]
	rec.state = StateShutdown
	handle := rec.handle
	o.mu.Unlock()

	if handle == nil {
		return
	}
	instance := handle.Instance()

	err := o.runWithTimeout(o.shutdownTimeout, func() error {
		return instance.Shutdown()
	})
	if err != nil {
		o.logger.Warn("plugin shutdown error, continuing", "plugin", id, "error", err)
	}

	_ = handle.Close()
	if o.limiter != nil {
		o.limiter.Reset(id)
	}

	o.mu.Lock()
	rec.state = StateDestroyed
	o.mu.Unlock()
}

// Disable transitions a Loaded plugin to Disabled and then shuts it
// down — the caller-driven counterpart to Shutdown.
func (o *Orchestrator) Disable(id string) error {
	o.mu.Lock()
	rec, ok := o.records[id]
	if !ok {
		o.mu.Unlock()
		return hosterr.New(hosterr.NotFound, "plugin %q not found", id)
	}
	if rec.state != StateLoaded {
		o.mu.Unlock()
		return hosterr.New(hosterr.InvalidArgument, "plugin %q is not loaded", id)
	}
	rec.state = StateDisabled
	o.mu.Unlock()

	o.shutdownOne(id)
	return nil
}

// --- permission.ManifestLookup / permission.StatusLookup ---

func (o *Orchestrator) Manifest(pluginID string) (*pluginapi.Manifest, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.records[pluginID]
	if !ok {
		return nil, false
	}
	m := rec.manifest
	return &m, true
}

func (o *Orchestrator) IsLoaded(pluginID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.records[pluginID]
	return ok && (rec.state == StateLoaded || rec.state == StateInvoking)
}

// Discovered lists every plugin id the Loader found, regardless of
// state, in discovery order.
func (o *Orchestrator) Discovered() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.plugins))
	copy(out, o.plugins)
	return out
}

// ListAll returns a status snapshot for every discovered plugin,
// including terminal-state ones, with status, reason, and the
// manifest.
func (o *Orchestrator) ListAll() []Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Snapshot, 0, len(o.plugins))
	for _, id := range o.plugins {
		rec := o.records[id]
		out = append(out, Snapshot{
			PluginID: id,
			State:    rec.state,
			Manifest: ManifestView{
				ID:          rec.manifest.ID,
				DisplayName: rec.manifest.DisplayName,
				Version:     rec.manifest.Version,
				Author:      rec.manifest.Author,
			},
		})
	}
	return out
}

// FailedPlugins returns every plugin currently in a terminal failure
// state, with its reason — the admin-facing ledger grounded on
// solaius-kf-reg's failedPlugin bookkeeping.
func (o *Orchestrator) FailedPlugins() []FailedPlugin {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []FailedPlugin
	for _, id := range o.plugins {
		if rec := o.records[id]; rec.failure != nil {
			out = append(out, *rec.failure)
		}
	}
	return out
}
