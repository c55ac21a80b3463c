//go:build linux || darwin || freebsd

package loader

import (
	goplugin "plugin"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// unixOpener loads .so/.dylib plugins via Go's native plugin package,
// the idiomatic in-process analogue of the C ABI's dlopen-based
// _plugin_create/_plugin_destroy contract: both mechanisms resolve
// exported symbols from a shared library opened into the same address
// space, with no sandboxing and no cross-process boundary, matching
// the C ABI's own lack of sandboxing exactly.
type unixOpener struct{}

func newPlatformOpener() platformOpener { return &unixOpener{} }

type unixHandle struct {
	lib      *goplugin.Plugin
	instance pluginapi.Plugin
}

func (h *unixHandle) Instance() pluginapi.Plugin { return h.instance }

// Close destroys the instance through the library's EntryDestroySymbol
// export (when it exports one of shape func(pluginapi.Plugin)) and then
// drops its references: Go's plugin package provides no mechanism to
// unload a library once opened (the runtime never unmaps it). The host
// still enforces the paired-lifecycle discipline at the Go level —
// Instance must already be shut down before Close is called — so that
// if a future Go runtime adds real unloading, this call site is already
// correct.
func (h *unixHandle) Close() error {
	if h.instance != nil {
		if sym, err := h.lib.Lookup(pluginapi.EntryDestroySymbol); err == nil {
			if destroy, ok := sym.(func(pluginapi.Plugin)); ok {
				destroy(h.instance)
			}
		}
	}
	h.instance = nil
	return nil
}

func (o *unixOpener) open(libraryPath string) (Handle, error) {
	lib, err := goplugin.Open(libraryPath)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.LibraryLoadFailed, err, "opening plugin library %s", libraryPath)
	}

	instance, err := instantiate(lib)
	if err != nil {
		return nil, err
	}

	return &unixHandle{lib: lib, instance: instance}, nil
}

// instantiate looks up the plugin's factory symbol and invokes it. Two
// exported shapes are accepted, mirroring the C ABI's "or equivalent
// fixed-name export" latitude the C ABI allows: a factory function
// (func() pluginapi.Plugin), or a pointer to one assigned to a package
// variable — the shape Go's plugin.Lookup hands back for `var X = ...`
// versus `func X() ...` declarations.
func instantiate(lib *goplugin.Plugin) (pluginapi.Plugin, error) {
	sym, err := lib.Lookup(pluginapi.EntryFactorySymbol)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.SymbolMissing, err, "plugin missing %s symbol", pluginapi.EntryFactorySymbol)
	}

	switch f := sym.(type) {
	case func() pluginapi.Plugin:
		return invokeFactory(f)
	case *func() pluginapi.Plugin:
		return invokeFactory(*f)
	default:
		return nil, hosterr.New(hosterr.SymbolMissing,
			"plugin symbol %s has wrong type %T, expected func() pluginapi.Plugin", pluginapi.EntryFactorySymbol, sym)
	}
}

func invokeFactory(f func() pluginapi.Plugin) (instance pluginapi.Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = hosterr.New(hosterr.PluginPanicked, "plugin factory panicked: %v", r)
		}
	}()
	instance = f()
	if instance == nil {
		return nil, hosterr.New(hosterr.LibraryLoadFailed, "plugin factory returned nil")
	}
	return instance, nil
}
