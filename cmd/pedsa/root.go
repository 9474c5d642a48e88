package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pedsa/pedsa/config"
	"github.com/pedsa/pedsa/pkg/logger"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	debug      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "pedsa",
		Short: "Energy-diffusion retrieval over a keyword and event graph",
		Long: `pedsa builds a two-layer graph of keywords and knowledge events and ranks
events for a query by diffusing activation energy through it.

Run "pedsa serve" for the HTTP API, or "pedsa query" to rank a corpus file
without a server.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "configuration file (YAML or JSON)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug mode")

	root.AddCommand(
		newServeCmd(g),
		newQueryCmd(g),
		newImportCmd(g),
		newExportCmd(g),
		newVersionCmd(),
	)
	return root
}

// overrides turns set flags into config keys. Extra keys come from the
// subcommand's own flags.
func (g *globalFlags) overrides(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	if g.logLevel != "" {
		out["log.level"] = g.logLevel
	}
	if g.debug {
		out["app.debug"] = true
	}
	return out
}

// load reads the configuration through loader, so a watcher can reuse it.
func (g *globalFlags) load(loader *config.Loader, extra map[string]interface{}) (*config.Config, error) {
	cfg, err := loader.Load(g.configPath, g.overrides(extra))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	return logger.New(logCfg)
}
