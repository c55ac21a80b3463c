// Command hourglassd is the host daemon: it opens the embedded store,
// wires up the seven core components, discovers and initializes every
// installed plugin, then serves the frontend IPC boundary until told
// to stop.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hourglassapp/hourglass/internal/config"
	"github.com/hourglassapp/hourglass/internal/hostapi"
	"github.com/hourglassapp/hourglass/internal/ipc"
	"github.com/hourglassapp/hourglass/internal/loader"
	"github.com/hourglassapp/hourglass/internal/metrics"
	"github.com/hourglassapp/hourglass/internal/orchestrator"
	"github.com/hourglassapp/hourglass/internal/permission"
	"github.com/hourglassapp/hourglass/internal/pluginlog"
	"github.com/hourglassapp/hourglass/internal/ratelimit"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (TOML/YAML/JSON, viper-decoded)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.PluginsDir(), 0o755); err != nil {
		logger.Error("creating plugins directory", "dir", cfg.PluginsDir(), "error", err)
		os.Exit(1)
	}

	s, err := store.Open(cfg.StorePath())
	if err != nil {
		logger.Error("opening store", "path", cfg.StorePath(), "error", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, ddl := range schema.CoreSchemaDDL() {
		if _, err := s.Exec(ctx, ddl); err != nil {
			logger.Error("bootstrapping core schema", "error", err)
			os.Exit(1)
		}
	}

	reg := registry.New()
	schemaEng := schema.New(s, reg)
	if err := schemaEng.EnsureLedger(ctx); err != nil {
		logger.Error("ensuring migration ledger", "error", err)
		os.Exit(1)
	}

	pluginLogs := pluginlog.New()
	host := hostapi.New(s, reg, schemaEng,
		hostapi.WithLogger(logger),
		hostapi.WithPluginLogs(pluginLogs),
		hostapi.WithConfigGetter(func(key string) (string, bool) { return "", false }),
	)

	m := metrics.Global()
	limiter := ratelimit.New(cfg.DefaultRateLimitPerSecond, cfg.DefaultRateLimitBurst)

	orc := orchestrator.New(host, reg, schemaEng, logger, cfg.InitializeTimeout, cfg.ShutdownTimeout, m, limiter)
	broker := permission.New(reg, orc, orc, host)
	host.SetBroker(broker)
	host.SetOrchestrator(orc)

	installed, discoveryErrs := loader.Discover(cfg.PluginsDir())
	orc.LoadAll(ctx, installed, discoveryErrs)

	watcher, err := loader.NewInstallWatcher(cfg.PluginsDir(), logger)
	if err != nil {
		logger.Warn("install watcher unavailable, new plugins require a restart to be discovered", "error", err)
	} else {
		defer watcher.Close()
		go watchForInstalls(ctx, watcher, cfg, orc, logger)
	}

	ipcServer := ipc.New(orc)
	httpServer := &http.Server{Addr: cfg.IPCAddr, Handler: metricsAndIPC(ipcServer)}

	go func() {
		logger.Info("frontend IPC boundary listening", "addr", cfg.IPCAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("IPC server exited", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	orc.ShutdownAll(shutdownCtx)
}

// metricsAndIPC composes the gin-served frontend IPC routes with a
// plain net/http Prometheus exposition handler under /metrics.
func metricsAndIPC(s *ipc.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", s.Engine())
	return mux
}

// watchForInstalls re-runs discovery whenever the install watcher sees a
// new plugin directory, and hands the Orchestrator only the plugins it
// hasn't seen yet — LoadAll is written to drive a fresh batch through
// resolution once, so re-feeding already-Loaded plugins into it on every
// fsnotify event would re-register them and corrupt their state.
func watchForInstalls(ctx context.Context, w *loader.InstallWatcher, cfg config.Config, orc *orchestrator.Orchestrator, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case dir, ok := <-w.Found():
			if !ok {
				return
			}
			logger.Info("new plugin directory detected, re-running discovery", "dir", dir)

			known := make(map[string]bool)
			for _, id := range orc.Discovered() {
				known[id] = true
			}

			installed, discoveryErrs := loader.Discover(cfg.PluginsDir())
			var fresh []loader.InstalledPlugin
			for _, ip := range installed {
				if !known[ip.Manifest.ID] {
					fresh = append(fresh, ip)
				}
			}
			if len(fresh) == 0 {
				continue
			}
			orc.LoadAll(ctx, fresh, discoveryErrs)
		}
	}
}
