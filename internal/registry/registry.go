// Package registry is the Extension Registry (C2): an in-memory,
// append-only-within-a-lifetime record of what each loaded plugin has
// registered — schema changes, model fields, data hooks, query filters —
// plus the table-to-owner index the Permission Broker consults.
package registry

import (
	"sync"

	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// Entry is one plugin's full registered extension set.
type Entry struct {
	SchemaChanges []pluginapi.SchemaChange
	ModelFields   []pluginapi.Field
	DataHooks     []pluginapi.DataHook
	QueryFilters  []pluginapi.QueryFilter

	// OwnedTables is derived from SchemaChanges' CreateTable entries.
	// It is process-local and never persisted.
	OwnedTables map[string]bool
}

func newEntry() *Entry {
	return &Entry{OwnedTables: make(map[string]bool)}
}

// Registry is the Extension Registry. All registration writes take the
// exclusive lock; all reads (including the Permission Broker's
// ownership lookups) take the shared lock, this component's single
// reader-writer-lock concurrency rule.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry // plugin_id -> entry
	tableOwner map[string]string // table_name -> plugin_id
	commitOrder []string // plugin ids in first-commit order == dependency order
}

func New() *Registry {
	return &Registry{
		entries:    make(map[string]*Entry),
		tableOwner: make(map[string]string),
	}
}

// StagingArea accumulates one plugin's registrations during its
// Initialize call, isolated from the live Registry so a failing plugin's
// partial registrations never leak into the committed state.
type StagingArea struct {
	pluginID string
	entry    *Entry
}

// BeginStaging starts a staging area for pluginID's upcoming Initialize
// call.
func (r *Registry) BeginStaging(pluginID string) *StagingArea {
	return &StagingArea{pluginID: pluginID, entry: newEntry()}
}

func (s *StagingArea) AddSchemaChanges(changes []pluginapi.SchemaChange) {
	s.entry.SchemaChanges = append(s.entry.SchemaChanges, changes...)
	for _, c := range changes {
		if c.Kind == pluginapi.KindCreateTable && c.CreateTable != nil {
			s.entry.OwnedTables[c.CreateTable.Name] = true
		}
	}
}

func (s *StagingArea) AddModelFields(fields []pluginapi.Field) {
	s.entry.ModelFields = append(s.entry.ModelFields, fields...)
}

func (s *StagingArea) AddDataHook(hook pluginapi.DataHook) {
	s.entry.DataHooks = append(s.entry.DataHooks, hook)
}

func (s *StagingArea) AddQueryFilters(filters []pluginapi.QueryFilter) {
	s.entry.QueryFilters = append(s.entry.QueryFilters, filters...)
}

// StagedSchemaChanges returns what has been staged so far, for the
// Schema Engine to validate and apply before Commit is called.
func (s *StagingArea) StagedSchemaChanges() []pluginapi.SchemaChange {
	return s.entry.SchemaChanges
}

// Commit promotes a staging area's accumulated registrations into the
// live registry and indexes any newly owned tables. Called once the
// Schema Engine has successfully applied the staged schema changes in
// one transaction.
func (r *Registry) Commit(s *StagingArea) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[s.pluginID]
	if !ok {
		existing = newEntry()
		r.entries[s.pluginID] = existing
		r.commitOrder = append(r.commitOrder, s.pluginID)
	}
	existing.SchemaChanges = append(existing.SchemaChanges, s.entry.SchemaChanges...)
	existing.ModelFields = append(existing.ModelFields, s.entry.ModelFields...)
	existing.DataHooks = append(existing.DataHooks, s.entry.DataHooks...)
	existing.QueryFilters = append(existing.QueryFilters, s.entry.QueryFilters...)
	for t := range s.entry.OwnedTables {
		existing.OwnedTables[t] = true
		r.tableOwner[t] = s.pluginID
	}
}

// Discard drops a staging area without committing anything — the path
// taken when a plugin's Initialize call fails.
func (r *Registry) Discard(s *StagingArea) {
	// Nothing to do: the staging area was never linked into r.entries.
}

// OwnsTable reports whether pluginID owns table, consulting only
// committed state.
func (r *Registry) OwnsTable(pluginID, table string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[pluginID]
	if !ok {
		return false
	}
	return e.OwnedTables[table]
}

// TableOwner returns the plugin id owning table, and whether any plugin
// owns it — the authoritative lookup the Permission Broker uses.
func (r *Registry) TableOwner(table string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.tableOwner[table]
	return owner, ok
}

// CommittedPluginIDs returns every plugin id with at least one committed
// entry, in first-commit (dependency) order.
func (r *Registry) CommittedPluginIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.commitOrder))
	copy(out, r.commitOrder)
	return out
}

// Entry returns a copy-free read of pluginID's registered entry, or nil
// if the plugin has registered nothing (not yet loaded, or loaded with
// empty registrations).
func (r *Registry) Entry(pluginID string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[pluginID]
}

// DataHooksFor returns the data hooks registered against entity, across
// all plugins, in plugin-registration order — which the Orchestrator
// arranges to follow dependency order by committing plugins strictly in
// topological sequence.
func (r *Registry) DataHooksFor(entity pluginapi.EntityType) []PluginHook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PluginHook
	for _, pluginID := range r.commitOrder {
		e := r.entries[pluginID]
		for _, h := range e.DataHooks {
			if h.EntityType == entity {
				out = append(out, PluginHook{PluginID: pluginID, Hook: h})
			}
		}
	}
	return out
}

// PluginHook pairs a registered hook with the plugin that owns it.
type PluginHook struct {
	PluginID string
	Hook     pluginapi.DataHook
}

// QueryFiltersFor mirrors DataHooksFor for registered query filters.
func (r *Registry) QueryFiltersFor(entity pluginapi.EntityType) []PluginFilter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PluginFilter
	for _, pluginID := range r.commitOrder {
		e := r.entries[pluginID]
		for _, f := range e.QueryFilters {
			if f.EntityType == entity {
				out = append(out, PluginFilter{PluginID: pluginID, Filter: f})
			}
		}
	}
	return out
}

// PluginFilter pairs a registered query filter with its owning plugin.
type PluginFilter struct {
	PluginID string
	Filter   pluginapi.QueryFilter
}
