package loader

import "github.com/hourglassapp/hourglass/pkg/pluginapi"

// Handle owns one opened plugin library. Unload order is strictly:
// the caller shuts the plugin instance down, then calls Close, which
// destroys the instance through the library's destroy symbol and then
// releases the library — never the other way around. Symbol lookups and
// any call through Instance after Close are undefined and must not
// happen; callers enforce this by dropping every reference to Handle and
// Instance in the same step that calls Close.
type Handle interface {
	// Instance is the plugin object obtained from the library's factory
	// symbol.
	Instance() pluginapi.Plugin

	// Close destroys Instance through the library's destroy symbol and
	// releases the library. Must only be called after Instance has
	// already been shut down.
	Close() error
}

// platformOpener is implemented once per build-tagged file
// (loader_unix.go, loader_windows.go, loader_unsupported.go).
type platformOpener interface {
	open(libraryPath string) (Handle, error)
}

var opener platformOpener = newPlatformOpener()

// Open resolves libraryPath via the OS dynamic loader and retrieves the
// plugin's factory symbol. If the
// platform doesn't support native plugin loading, or the symbol is
// missing or of the wrong shape, the library is closed (if it was opened
// at all) and a LibraryLoadFailed/SymbolMissing error returned — never a
// panic, since a malformed plugin must never be fatal to the host.
func Open(libraryPath string) (Handle, error) {
	return opener.open(libraryPath)
}
