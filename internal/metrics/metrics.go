// Package metrics registers the host's Prometheus collectors, the way
// goatflow's scheduler package registers its email-poll metrics via
// promauto: a single lazily-built singleton set, namespaced so the
// exposition output groups cleanly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hourglass"

// Set is the host's full collector set.
type Set struct {
	PluginsLoaded          prometheus.Counter
	PluginsFailed          *prometheus.CounterVec
	CommandDispatches      *prometheus.CounterVec
	CommandDispatchErrors  *prometheus.CounterVec
	SchemaChangesApplied   *prometheus.CounterVec
	PermissionDenials      *prometheus.CounterVec
}

var (
	once sync.Once
	inst *Set
)

// Global returns the process-wide collector set, registering it against
// the default Prometheus registry on first use.
func Global() *Set {
	once.Do(func() { inst = newSet(prometheus.DefaultRegisterer) })
	return inst
}

// New builds a Set against an explicit registerer, for tests that want
// an isolated registry instead of the global default.
func New(reg prometheus.Registerer) *Set {
	return newSet(reg)
}

func newSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)
	return &Set{
		PluginsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "plugins_loaded_total",
			Help:      "Plugins that reached the Loaded state.",
		}),
		PluginsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "plugins_failed_total",
			Help:      "Plugins that landed in a terminal failure state, labeled by reason.",
		}, []string{"reason"}),
		CommandDispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "command_dispatches_total",
			Help:      "invoke_command dispatches routed through the orchestrator, labeled by plugin.",
		}, []string{"plugin"}),
		CommandDispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "command_dispatch_errors_total",
			Help:      "invoke_command dispatches that returned an error, labeled by plugin.",
		}, []string{"plugin"}),
		SchemaChangesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schema",
			Name:      "changes_applied_total",
			Help:      "Schema changes actually executed (ledger misses), labeled by plugin.",
		}, []string{"plugin"}),
		PermissionDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "denials_total",
			Help:      "query_plugin_table calls rejected by the permission broker, labeled by caller.",
		}, []string{"caller"}),
	}
}
