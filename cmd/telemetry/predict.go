package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/inference"
	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/store"
)

// #region predict

func newPredictCmd(g *globals) *cobra.Command {
	var addr, vector string
	var latest, health bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Ask the inference service for one prediction over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.GRPCAddr
			}
			client, err := inference.NewClient(addr)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if health {
				h, err := client.Health(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), h)
			}

			var vec []float64
			switch {
			case latest:
				vec, err = latestVector(ctx, cfg.DBPath)
			case vector != "":
				vec, err = parseVector(vector)
			default:
				err = errors.New("one of --features, --latest or --health is required")
			}
			if err != nil {
				return err
			}

			pred, err := client.Predict(ctx, protocol.FeaturePayload{
				SchemaVersion: features.SchemaVersion,
				Features:      vec,
				Source:        "cli",
				EmittedAt:     time.Now().UnixMilli(),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pred)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "inference gRPC address (default from config)")
	cmd.Flags().StringVar(&vector, "features", "", "comma-separated feature values in schema order")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the latest stored vector")
	cmd.Flags().BoolVar(&health, "health", false, "query service health instead")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "rpc timeout")
	return cmd
}

func parseVector(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	vec := make([]float64, 0, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		vec = append(vec, f)
	}
	if !features.Validate(vec) {
		return nil, fmt.Errorf("expected %d finite values, got %d", features.Len, len(vec))
	}
	return vec, nil
}

func latestVector(ctx context.Context, dbPath string) ([]float64, error) {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer st.Close()
	rec, err := st.LatestVector(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Features, nil
}

// #endregion predict
