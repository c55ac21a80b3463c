package loader

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// InstallWatcher notices new plugin directories appearing under the
// plugins root and reports them for discovery. It deliberately does
// not watch for modifications to already-installed plugins' files —
// hot-reloading a running plugin's library is out of scope. Only the
// plugins root itself is watched, so a new author directory is reported
// but a new plugin directory added under an existing author directory is
// not; fsnotify's usual live-reload role is narrowed to installation
// detection alone.
type InstallWatcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	found   chan string
}

// NewInstallWatcher watches pluginsRoot for newly created author
// subdirectories; Found() reports the author directory so the caller
// can re-run Discover against it.
func NewInstallWatcher(pluginsRoot string, logger *slog.Logger) (*InstallWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(pluginsRoot); err != nil {
		w.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	iw := &InstallWatcher{watcher: w, logger: logger, found: make(chan string, 16)}
	go iw.run()
	return iw, nil
}

func (iw *InstallWatcher) run() {
	for {
		select {
		case event, ok := <-iw.watcher.Events:
			if !ok {
				close(iw.found)
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			iw.logger.Debug("install watcher saw new entry", "path", event.Name)
			iw.found <- filepath.Clean(event.Name)
		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.logger.Warn("install watcher error", "error", err)
		}
	}
}

// Found is a stream of author directories created under the plugins
// root since the watcher started. The caller re-runs Discover against
// the plugins root (or the specific author directory) on each event.
func (iw *InstallWatcher) Found() <-chan string { return iw.found }

// Close stops the watcher.
func (iw *InstallWatcher) Close() error {
	return iw.watcher.Close()
}
