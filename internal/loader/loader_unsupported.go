//go:build !linux && !darwin && !freebsd && !windows

package loader

import (
	"runtime"

	"github.com/hourglassapp/hourglass/internal/hosterr"
)

// unsupportedOpener is used on platforms where neither Go's native
// plugin package nor the DLL loader apply.
type unsupportedOpener struct{}

func newPlatformOpener() platformOpener { return &unsupportedOpener{} }

func (o *unsupportedOpener) open(libraryPath string) (Handle, error) {
	return nil, hosterr.New(hosterr.LibraryLoadFailed, "plugin loading is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}
