package loader_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/loader"
)

const validManifest = `
id = "tasks"
display_name = "Tasks"
version = "1.0.0"
author = "acme"

[compat]
api_version = "1.0.0"

[backend]
library = "tasks.so"
`

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "plugin.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseManifestValid(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, validManifest)

	m, err := loader.ParseManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "tasks", m.ID)
	assert.Equal(t, "1.0.0", m.Version)
	assert.Equal(t, "tasks.so", m.Backend.Library)
}

func TestParseManifestMissingID(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
version = "1.0.0"
[backend]
library = "tasks.so"
`)
	_, err := loader.ParseManifest(path)
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

func TestParseManifestMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
id = "tasks"
[backend]
library = "tasks.so"
`)
	_, err := loader.ParseManifest(path)
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

func TestParseManifestMissingBackendLibrary(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
id = "tasks"
version = "1.0.0"
`)
	_, err := loader.ParseManifest(path)
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

func TestParseManifestMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "this is not [ valid toml")
	_, err := loader.ParseManifest(path)
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

func TestDiscoverFindsAuthorPluginLayout(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "acme", "tasks"), validManifest)

	found, errs := loader.Discover(root)
	require.Empty(t, errs)
	require.Len(t, found, 1)
	assert.Equal(t, "tasks", found[0].Manifest.ID)
}

func TestDiscoverSkipsMalformedManifestWithoutAbortingRest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "acme", "broken"), "not valid toml [[[")
	writeManifest(t, filepath.Join(root, "acme", "tasks"), validManifest)

	found, errs := loader.Discover(root)
	require.Len(t, errs, 1)
	require.Len(t, found, 1)
	assert.Equal(t, "tasks", found[0].Manifest.ID)
}

func TestDiscoverMissingRootReturnsNoError(t *testing.T) {
	found, errs := loader.Discover(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Empty(t, found)
	assert.Empty(t, errs)
}

func TestDiscoverSkipsDirWithoutManifest(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "acme", "empty-plugin"), 0o755))

	found, errs := loader.Discover(root)
	assert.Empty(t, found)
	require.Len(t, errs, 1)
}
