package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/config"
	"github.com/dyra-12/cogniviz/internal/logging"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	dbPath     string
}

func newRootCmd() *cobra.Command {
	var g globals

	root := &cobra.Command{
		Use:           "telemetry",
		Short:         "CogniViz interaction telemetry client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database (overrides config)")

	root.AddCommand(newRunCmd(&g))
	root.AddCommand(newInspectCmd(&g))
	root.AddCommand(newReplayCmd())
	root.AddCommand(newExportCmd(&g))
	root.AddCommand(newSubmitCmd(&g))
	root.AddCommand(newPredictCmd(&g))
	return root
}

// #endregion main

// #region setup

func loadConfig(g *globals) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	logger, err := logging.New(cfg.LogLevel, cfg.DebugTelemetry)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// #endregion setup
