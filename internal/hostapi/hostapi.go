// Package hostapi is the Host API (C4): the capability surface exposed
// to plugins, wired to the real store, registry, schema engine, and
// permission broker, the way goatflow's ProdHostAPI wires plugins to its
// real database, cache, and notification services.
package hostapi

import (
	"context"
	"log/slog"

	"github.com/hourglassapp/hourglass/internal/coredata"
	"github.com/hourglassapp/hourglass/internal/permission"
	"github.com/hourglassapp/hourglass/internal/pluginlog"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// VTableVersion is the integer vtable-version discipline this
// implementation pins on, cross-checked against the manifest's semver
// api_version string at load time (see internal/loader/compat.go).
const VTableVersion = 1

// Dispatcher is the narrow surface of the Orchestrator the Host API
// needs for CallPlugin — supplied at construction via WithOrchestrator or
// after construction via SetOrchestrator, the same late-binding the
// teacher's WithPluginManager option performs,
// since the Orchestrator in turn holds a reference to every plugin's
// Host API view to pass into Initialize/InvokeCommand.
type Dispatcher interface {
	Dispatch(ctx context.Context, pluginID, command string, params []byte) ([]byte, error)
}

// Prod is the production Host API implementation shared by every
// plugin; per-plugin identity and staging is layered on top by View.
type Prod struct {
	store      *store.Store
	core       *coredata.CoreData
	reg        *registry.Registry
	schemaEng  *schema.Engine
	broker     *permission.Broker
	logger     *slog.Logger
	pluginLogs *pluginlog.Store
	dispatcher Dispatcher
	configGet  func(key string) (string, bool)
}

// Option configures a Prod at construction time.
type Option func(*Prod)

func WithLogger(l *slog.Logger) Option {
	return func(p *Prod) { p.logger = l }
}

func WithPluginLogs(pl *pluginlog.Store) Option {
	return func(p *Prod) { p.pluginLogs = pl }
}

func WithConfigGetter(fn func(key string) (string, bool)) Option {
	return func(p *Prod) { p.configGet = fn }
}

// WithOrchestrator wires the Orchestrator for CallPlugin dispatch at
// construction time. When the Orchestrator is built after the Host API
// (it needs the Host API to construct per-plugin views), SetOrchestrator
// wires it post-construction instead, the same deferred-wiring shape as
// the teacher's WithPluginManager.
func WithOrchestrator(d Dispatcher) Option {
	return func(p *Prod) { p.dispatcher = d }
}

// New builds the production Host API over s/reg/schemaEng. The
// Permission Broker is wired in afterwards via SetBroker, since building
// it requires the Orchestrator's manifest/status lookups and the
// Orchestrator in turn needs this Host API to construct plugin views —
// the same deferred-wiring shape SetOrchestrator uses.
func New(s *store.Store, reg *registry.Registry, schemaEng *schema.Engine, opts ...Option) *Prod {
	p := &Prod{
		store:     s,
		core:      coredata.New(s, reg),
		reg:       reg,
		schemaEng: schemaEng,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatcher != nil {
		p.core.SetDispatcher(p.dispatcher)
	}
	return p
}

// SetOrchestrator performs the same wiring as WithOrchestrator after
// construction, for assembly code that builds Prod before the
// Orchestrator exists. core's dispatcher is wired the same way, so data
// hooks and query filters can dispatch through the same Orchestrator
// CallPlugin does.
func (p *Prod) SetOrchestrator(d Dispatcher) {
	p.dispatcher = d
	p.core.SetDispatcher(d)
}

// SetBroker wires in the Permission Broker once it has been constructed.
func (p *Prod) SetBroker(b *permission.Broker) { p.broker = b }

// Registry exposes the Extension Registry for components (the
// Orchestrator) that need to inspect committed registrations directly.
func (p *Prod) Registry() *registry.Registry { return p.reg }

// SchemaEngine exposes the Schema Engine for the Orchestrator's
// initialize protocol.
func (p *Prod) SchemaEngine() *schema.Engine { return p.schemaEng }
