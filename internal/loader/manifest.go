// Package loader is the Loader (C5): it discovers installed plugin
// directories, parses manifests, opens the plugin's shared library, and
// retrieves its factory/destroy symbols.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

// InstalledPlugin is one discovered {author}/{plugin_id} directory with
// its parsed manifest, prior to any loading.
type InstalledPlugin struct {
	Manifest Manifest
	Dir      string // absolute directory path
}

// Manifest aliases pluginapi.Manifest; kept as a distinct name in this
// package so loader-internal code reads naturally (loader.Manifest)
// while the cross-boundary type lives in pkg/pluginapi.
type Manifest = pluginapi.Manifest

// ParseManifest reads and parses plugin.toml at path.
func ParseManifest(path string) (Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, hosterr.Wrap(hosterr.ManifestInvalid, err, "parsing manifest %s", path)
	}
	if m.ID == "" {
		return Manifest{}, hosterr.New(hosterr.ManifestInvalid, "manifest %s missing required field id", path)
	}
	if m.Version == "" {
		return Manifest{}, hosterr.New(hosterr.ManifestInvalid, "manifest %s missing required field version", path)
	}
	if m.Backend.Library == "" {
		return Manifest{}, hosterr.New(hosterr.ManifestInvalid, "manifest %s missing required field backend.library", path)
	}
	return m, nil
}

// Discover walks pluginsRoot two levels deep ({author}/{plugin_id}/),
// parsing plugin.toml in each leaf directory. A malformed manifest is
// logged via the returned DiscoveryError and skipped rather than
// aborting discovery of the rest of the tree.
func Discover(pluginsRoot string) ([]InstalledPlugin, []DiscoveryError) {
	var found []InstalledPlugin
	var errs []DiscoveryError

	authorEntries, err := os.ReadDir(pluginsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		errs = append(errs, DiscoveryError{Dir: pluginsRoot, Err: err})
		return nil, errs
	}

	for _, authorEntry := range authorEntries {
		if !authorEntry.IsDir() {
			continue
		}
		authorDir := filepath.Join(pluginsRoot, authorEntry.Name())

		pluginEntries, err := os.ReadDir(authorDir)
		if err != nil {
			errs = append(errs, DiscoveryError{Dir: authorDir, Err: err})
			continue
		}

		for _, pe := range pluginEntries {
			if !pe.IsDir() {
				continue
			}
			dir := filepath.Join(authorDir, pe.Name())
			manifestPath := filepath.Join(dir, "plugin.toml")

			if _, err := os.Stat(manifestPath); err != nil {
				errs = append(errs, DiscoveryError{Dir: dir, Err: fmt.Errorf("no plugin.toml: %w", err)})
				continue
			}

			m, err := ParseManifest(manifestPath)
			if err != nil {
				errs = append(errs, DiscoveryError{Dir: dir, Err: err})
				continue
			}

			found = append(found, InstalledPlugin{Manifest: m, Dir: dir})
		}
	}

	return found, errs
}

// DiscoveryError pairs a directory with the reason it was skipped.
type DiscoveryError struct {
	Dir string
	Err error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dir, e.Err)
}
