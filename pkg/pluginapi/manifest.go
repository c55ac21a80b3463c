// Package pluginapi is the contract a plugin author builds against: the
// manifest shape, the Plugin interface the loader expects the library's
// factory to produce, and the HostAPI surface passed into Initialize and
// InvokeCommand.
//
// Go's native plugin package does symbol lookup by exported name rather
// than raw C function pointers, so the cross-boundary contract here is
// expressed as exported Go symbols instead of a literal vtable struct —
// the idiomatic stand-in for the C ABI's _plugin_create/_plugin_destroy
// pair. See internal/loader for the lookup mechanics.
package pluginapi

import "encoding/json"

// EntryFactorySymbol and EntryDestroySymbol are the exported names the
// Loader looks up via plugin.Lookup: the factory right after plugin.Open
// succeeds, the destroy function (func(pluginapi.Plugin), optional) when
// the handle is closed. A plugin built with -buildmode=plugin must
// export the factory as:
//
//	var HourglassNewPlugin = func() pluginapi.Plugin { ... }  // or
//	func HourglassNewPlugin() pluginapi.Plugin
//
// The loader accepts either form; see internal/loader/loader_unix.go.
const (
	EntryFactorySymbol = "HourglassNewPlugin"
	EntryDestroySymbol = "HourglassDestroyPlugin"
)

// Manifest is plugin.toml, parsed.
type Manifest struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	Version     string `toml:"version"`
	Author      string `toml:"author"`
	Description string `toml:"description"`
	Repository  string `toml:"repository"`
	License     string `toml:"license"`

	Compat Compatibility `toml:"compat"`
	Backend Backend      `toml:"backend"`
	Frontend *Frontend   `toml:"frontend"`

	Dependencies  []Dependency   `toml:"dependencies"`
	ExposedTables []ExposedTable `toml:"exposed_tables"`
}

// Compatibility is the manifest's compatibility window.
type Compatibility struct {
	APIVersion  string `toml:"api_version"`
	MinHostVersion string `toml:"min_host_version"`
	MaxHostVersion string `toml:"max_host_version"`
}

// Backend names the shared library file, relative to the plugin's
// directory.
type Backend struct {
	Library string `toml:"library"`
}

// Frontend is the optional frontend section; its contents are opaque to
// the host beyond the entry path and named component list.
type Frontend struct {
	Entry      string   `toml:"entry"`
	Components []string `toml:"components"`
}

// Dependency is a (plugin_id, version_constraint) pair, e.g.
// {PluginID: "billing", Constraint: "^1.2.0"}.
type Dependency struct {
	PluginID   string `toml:"plugin_id"`
	Constraint string `toml:"version"`
}

// ExposedTable declares one of a plugin's owned tables as readable by
// other plugins. AllowedPlugins is one of ["*"] (public), a specific
// list, or [] (private, though an absent entry for a table also means
// private — see internal/permission).
type ExposedTable struct {
	TableName      string   `toml:"table_name"`
	AllowedPlugins []string `toml:"allowed_plugins"`
	Description    string   `toml:"description"`
}

// PublicWildcard is the allowed_plugins sentinel matching any caller.
const PublicWildcard = "*"

// Plugin is the interface a loaded library's factory must produce. It
// mirrors the C ABI's plugin entry points (info, initialize,
// invoke_command, shutdown) one to one.
type Plugin interface {
	// Info returns static identity metadata. It must not block or touch
	// the Host API.
	Info() Info

	// Initialize is called once, in dependency order, with the vtable
	// the plugin uses to register extensions and perform initial setup.
	// Returning an error marks the plugin Failed; any extensions it
	// registered during this call are discarded.
	Initialize(api HostAPI) error

	// InvokeCommand handles a dispatched frontend/host command. params
	// and the returned result are JSON byte buffers; both sides copy,
	// nothing is shared across the boundary.
	InvokeCommand(command string, params json.RawMessage, api HostAPI) (json.RawMessage, error)

	// Shutdown is called once, in reverse dependency order, before the
	// instance is destroyed.
	Shutdown() error
}

// Info is static plugin identity, independent of the manifest (a plugin
// may assert its own id/version for a sanity cross-check against the
// manifest the loader parsed).
type Info struct {
	ID      string
	Version string
}

// SchemaExtensionProvider is an optional interface a Plugin may also
// implement to expose its schema extensions as a plain value. The host
// does not call it: schema extensions take effect only when registered
// through HostAPI.RegisterSchemaExtension during Initialize.
type SchemaExtensionProvider interface {
	SchemaExtensions() []SchemaChange
}
