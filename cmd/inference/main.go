package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/config"
	"github.com/dyra-12/cogniviz/internal/inference"
	"github.com/dyra-12/cogniviz/internal/logging"
)

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "inference",
		Short:         "CogniViz cognitive load inference service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.AddCommand(newServeCmd(&configPath))
	return root
}

// #endregion main

// #region serve

func newServeCmd(configPath *string) *cobra.Command {
	var httpAddr, grpcAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /ws/metrics, /predict, /health and the gRPC Inference service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				cfg.GRPCAddr = grpcAddr
			}
			logger, err := logging.New(cfg.LogLevel, cfg.DebugTelemetry)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := inference.NewService(inference.WithLogger(logger))
			logger.Info("inference service starting",
				zap.String("http", cfg.HTTPAddr),
				zap.String("grpc", cfg.GRPCAddr))
			return svc.ListenAndServe(ctx, cfg.HTTPAddr, cfg.GRPCAddr)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC listen address (default from config)")
	return cmd
}

// #endregion serve
