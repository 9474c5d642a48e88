package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/api"
	"github.com/pedsa/pedsa/pkg/api/handlers"
	"github.com/pedsa/pedsa/pkg/logger"
	"github.com/pedsa/pedsa/pkg/memory"
	"github.com/pedsa/pedsa/pkg/metrics"
	"github.com/pedsa/pedsa/pkg/telemetry/tracing"
	"github.com/pedsa/pedsa/pkg/version"
)

type serveFlags struct {
	appName string
	port    int
	corpus  string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Example: `  pedsa serve
  pedsa serve --config pedsa.yaml
  pedsa serve --port 9090 --log-level debug
  pedsa serve --corpus seed.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, f)
		},
	}

	cmd.Flags().StringVar(&f.appName, "app-name", "", "override app name")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "override server port")
	cmd.Flags().StringVar(&f.corpus, "corpus", "", "seed an empty store from this corpus file")
	return cmd
}

func (f *serveFlags) overrides() map[string]interface{} {
	out := make(map[string]interface{})
	if f.appName != "" {
		out["app.name"] = f.appName
	}
	if f.port != 0 {
		out["server.port"] = f.port
	}
	if f.corpus != "" {
		out["corpus.file"] = f.corpus
	}
	return out
}

func runServe(ctx context.Context, g *globalFlags, f *serveFlags) error {
	loader := config.NewLoader()
	cfg, err := g.load(loader, f.overrides())
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	logger.SetGlobal(log)
	defer log.Close() //nolint:errcheck

	build := version.Get()
	log.Info("starting pedsa",
		"version", build.Version,
		"git_commit", build.GitCommit,
		"build_time", build.BuildTime,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     build.Version,
		Environment: cfg.App.Environment,
	}, tracing.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := openStorage(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("error closing storage", "error", err)
		}
	}()

	resultCache, closeCache := openCache(ctx, cfg.Cache, log)
	defer func() {
		if err := closeCache(); err != nil {
			log.Error("error closing cache", "error", err)
		}
	}()

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	hubOpts := []memory.HubOption{
		memory.WithLogger(log.With("component", "hub")),
		memory.WithCache(resultCache),
		memory.WithMetrics(metricsManager),
	}
	var events *handlers.EventsHandler
	if cfg.Server.Events.Enabled {
		events = handlers.NewEventsHandler(log.With("component", "events"), handlers.EventsConfig{
			AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
			MaxConnections: cfg.Server.Events.MaxConnections,
			PingInterval:   cfg.Server.Events.PingInterval,
		})
		hubOpts = append(hubOpts, memory.WithObserver(events))
	}

	hub := memory.NewHub(memory.HubConfig{
		Params:          cfg.Engine.Params,
		DefaultTopK:     cfg.Engine.TopK,
		TagWeight:       cfg.Engine.TagWeight,
		AutoCompile:     cfg.Engine.AutoCompile,
		CompileDebounce: cfg.Engine.CompileDebounce,
		CorpusFile:      cfg.Corpus.File,
	}, store, hubOpts...)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start memory hub: %w", err)
	}

	apiHandlers := &api.Handlers{
		Health: handlers.NewHealthHandler(hub),
		Memory: handlers.NewMemoryHandler(hub, log),
		Events: events,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}
	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return httpServer.Start()
	})

	if metricsManager.Enabled() {
		group.Go(func() error {
			log.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(groupCtx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if g.configPath != "" {
		watcher, err := config.NewWatcher(g.configPath, loader, config.WithWatcherLogger(log))
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			watcher.OnChange(applyHotReload(cfg, log, hub))
			group.Go(func() error {
				err := watcher.Watch(groupCtx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		}
	}

	log.Info("pedsa is running",
		"addr", httpServer.Addr(),
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
		"cache", cfg.Cache.Type,
	)

	// Shut the HTTP server down once a signal arrives or a sibling fails.
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if events != nil {
			// Hijacked streams are not closed by Shutdown.
			log.Info("closing event streams", "connections", events.Connections())
			events.Close()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	runErr := group.Wait()
	if runErr != nil {
		log.Error("server stopped with error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info("stopping memory hub")
	if err := hub.Stop(shutdownCtx); err != nil {
		log.Error("error stopping memory hub", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("error shutting down tracing", "error", err)
	}

	log.Info("pedsa stopped")
	return runErr
}

// applyHotReload returns the watcher callback that applies a changed log
// level and engine parameters. Other settings need a restart.
func applyHotReload(initial *config.Config, log logger.Logger, hub *memory.Hub) func(*config.Config) {
	current := config.ExtractHotReloadable(initial)

	return func(cfg *config.Config) {
		next := config.ExtractHotReloadable(cfg)
		if !current.Changed(next) {
			log.Debug("config file changed, nothing to apply")
			return
		}

		if next.LogLevel != current.LogLevel && !cfg.App.Debug {
			log.SetLevel(logger.ParseLevel(next.LogLevel))
			log.Info("log level updated", "level", next.LogLevel)
		}
		if current.ParamsChanged(next) {
			hub.UpdateParams(next.EngineParams)
		}
		current = next
	}
}
