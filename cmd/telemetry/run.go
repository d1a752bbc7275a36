package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/app"
	"github.com/dyra-12/cogniviz/internal/cogload"
	"github.com/dyra-12/cogniviz/internal/protocol"
)

// #region run

func newRunCmd(g *globals) *cobra.Command {
	var eventsPath string
	var linger time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Feed JSON-line UI events through the pipeline and print predictions",
		Long: "Reads one event per line from --events (or stdin), drives the task " +
			"collectors, streams feature vectors to the inference service and " +
			"prints every prediction as it arrives.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(g)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var in io.Reader = cmd.InOrStdin()
			if eventsPath != "" && eventsPath != "-" {
				f, err := os.Open(eventsPath)
				if err != nil {
					return fmt.Errorf("open events: %w", err)
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			unsub := a.Monitor.Subscribe(func(p protocol.Prediction) { printPrediction(out, p) })
			defer unsub()

			st, runErr := a.Ingest(ctx, in)
			if runErr == nil && linger > 0 {
				// live mode answers asynchronously
				select {
				case <-time.After(linger):
				case <-ctx.Done():
				}
			}
			closeErr := a.Close()

			logger.Info("run finished",
				zap.Int("applied", st.Applied),
				zap.Int("skipped", st.Skipped),
				zap.Int("failures", st.Failures))
			_, _ = fmt.Fprintf(out, "\nevents: %d applied, %d skipped, %d failed\n", st.Applied, st.Skipped, st.Failures)
			cur := a.Monitor.Current()
			_, _ = fmt.Fprintf(out, "final load: %s (%s)\n", cur.LoadClass, cogload.Describe(cur.LoadClass))

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return closeErr
		},
	}
	cmd.Flags().StringVar(&eventsPath, "events", "", "JSON-lines event file (default stdin)")
	cmd.Flags().DurationVar(&linger, "linger", 0, "wait this long for late predictions before exiting")
	return cmd
}

func printPrediction(w io.Writer, p protocol.Prediction) {
	at := time.UnixMilli(p.ReceivedAt).UTC().Format("15:04:05.000")
	_, _ = fmt.Fprintf(w, "%s  %-7s  L=%.2f M=%.2f H=%.2f  %s\n",
		at, p.LoadClass, p.Probabilities.Low, p.Probabilities.Medium, p.Probabilities.High, p.Explanation)
}

// #endregion run
