// Package permission is the Permission Broker (C7): it enforces the
// table-ownership and exposed-table rules for cross-plugin reads via
// query_plugin_table.
package permission

import (
	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/metrics"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// ManifestLookup resolves a plugin's parsed manifest by id.
type ManifestLookup interface {
	Manifest(pluginID string) (*pluginapi.Manifest, bool)
}

// StatusLookup reports whether a plugin is currently in the Loaded
// state — a query against a plugin that failed to load, or was since
// disabled, must fail closed.
type StatusLookup interface {
	IsLoaded(pluginID string) bool
}

// TableQuerier executes the read-only query_own_table logic under a
// given ownership principal. The Host API implements this; the broker
// never touches the store directly.
type TableQuerier interface {
	QueryOwnTableAs(principalPluginID, table string, filters pluginapi.Filters, orderBy string, limit *int) ([]pluginapi.Obj, error)
}

// Broker implements query_plugin_table's access-control decision.
type Broker struct {
	reg       *registry.Registry
	manifests ManifestLookup
	status    StatusLookup
	querier   TableQuerier
	metrics   *metrics.Set
}

func New(reg *registry.Registry, manifests ManifestLookup, status StatusLookup, querier TableQuerier) *Broker {
	return &Broker{reg: reg, manifests: manifests, status: status, querier: querier, metrics: metrics.Global()}
}

// QueryPluginTable implements the cross-plugin read access-control
// decision in five steps. Self-reads (caller == owner) bypass the broker
// entirely: the Host API's View routes them to its own QueryOwnTable
// before ever reaching here; this method assumes caller != owner.
func (b *Broker) QueryPluginTable(caller, owner, table string, filters pluginapi.Filters, orderBy string, limit *int) ([]pluginapi.Obj, error) {
	// Step 1: owner must exist and be Loaded.
	manifest, ok := b.manifests.Manifest(owner)
	if !ok || !b.status.IsLoaded(owner) {
		b.metrics.PermissionDenials.WithLabelValues(caller).Inc()
		return nil, hosterr.New(hosterr.PermissionDenied, "plugin %q is not loaded", owner)
	}

	// Step 2: owner must actually own the table.
	if !b.reg.OwnsTable(owner, table) {
		return nil, hosterr.New(hosterr.NotFound, "plugin %q does not own table %q", owner, table)
	}

	// Step 3: owner's manifest must expose the table. An absent entry
	// for the table means private — never fall through to "public by
	// default".
	var exposed *pluginapi.ExposedTable
	for i := range manifest.ExposedTables {
		if manifest.ExposedTables[i].TableName == table {
			exposed = &manifest.ExposedTables[i]
			break
		}
	}
	if exposed == nil {
		b.metrics.PermissionDenials.WithLabelValues(caller).Inc()
		return nil, hosterr.New(hosterr.PermissionDenied, "table %q is not exposed by plugin %q", table, owner)
	}

	// Step 4: caller must be allowed. An explicit empty list denies even
	// "*" requests, since "*" is checked as one of the listed entries,
	// not a separate bypass.
	if !allows(exposed.AllowedPlugins, caller) {
		b.metrics.PermissionDenials.WithLabelValues(caller).Inc()
		return nil, hosterr.New(hosterr.PermissionDenied, "plugin %q may not read %q.%q", caller, owner, table)
	}

	// Step 5: forward to query_own_table logic under the owner
	// principal.
	return b.querier.QueryOwnTableAs(owner, table, filters, orderBy, limit)
}

func allows(allowedPlugins []string, caller string) bool {
	for _, p := range allowedPlugins {
		if p == pluginapi.PublicWildcard || p == caller {
			return true
		}
	}
	return false
}
