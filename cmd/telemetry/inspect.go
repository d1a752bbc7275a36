package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/logging"
	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/store"
)

// #region inspect

func newInspectCmd(g *globals) *cobra.Command {
	var last int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List stored snapshots, recent vectors and predictions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			rep, err := collectReport(cmd.Context(), st, last)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 10, "show N most recent vectors and predictions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of tables")
	return cmd
}

type report struct {
	Snapshots   []store.SnapshotRecord `json:"snapshots"`
	Vectors     []vectorRow            `json:"vectors"`
	Predictions []protocol.Prediction  `json:"predictions"`
}

type vectorRow struct {
	ID       int64              `json:"id"`
	Source   string             `json:"source"`
	Emitted  string             `json:"emitted_at"`
	Schema   string             `json:"schema_version"`
	Features map[string]float64 `json:"features"`
}

func collectReport(ctx context.Context, st *store.Store, last int) (report, error) {
	var rep report
	var err error
	if rep.Snapshots, err = st.ListSnapshots(ctx); err != nil {
		return report{}, err
	}
	vecs, err := st.ListVectors(ctx, last)
	if err != nil {
		return report{}, err
	}
	// newest first from the store, chronological here
	for i := len(vecs) - 1; i >= 0; i-- {
		rep.Vectors = append(rep.Vectors, toRow(vecs[i]))
	}
	if rep.Predictions, err = logging.ListPredictions(ctx, st.DB(), last); err != nil {
		return report{}, err
	}
	return rep, nil
}

func toRow(v store.VectorRecord) vectorRow {
	row := vectorRow{
		ID:       v.ID,
		Source:   v.Source,
		Emitted:  v.EmittedAt.Format("2006-01-02T15:04:05.000Z"),
		Schema:   v.SchemaVersion,
		Features: make(map[string]float64, len(v.Features)),
	}
	keys := features.Keys()
	for i, f := range v.Features {
		if i < len(keys) {
			row.Features[keys[i]] = f
		}
	}
	return row
}

func printReport(w io.Writer, rep report) {
	_, _ = fmt.Fprintf(w, "Snapshots (%d)\n", len(rep.Snapshots))
	_, _ = fmt.Fprintf(w, "%-44s  %-6s  %8s  %s\n", "Key", "Task", "Bytes", "Saved")
	for _, s := range rep.Snapshots {
		_, _ = fmt.Fprintf(w, "%-44s  %-6s  %8d  %s\n", s.Key, s.TaskID, s.Bytes, s.SavedAt.Format("2006-01-02T15:04:05Z"))
	}

	_, _ = fmt.Fprintf(w, "\nVectors (%d)\n", len(rep.Vectors))
	_, _ = fmt.Fprintf(w, "%-6s  %-8s  %-24s  %s\n", "ID", "Source", "Emitted", "Non-zero slots")
	for _, v := range rep.Vectors {
		nz := 0
		for _, f := range v.Features {
			if f != 0 {
				nz++
			}
		}
		_, _ = fmt.Fprintf(w, "%-6d  %-8s  %-24s  %d/%d\n", v.ID, v.Source, v.Emitted, nz, features.Len)
	}
	if n := len(rep.Vectors); n > 0 {
		latest := rep.Vectors[n-1]
		_, _ = fmt.Fprintln(w, "\nLatest vector:")
		for _, k := range features.Keys() {
			_, _ = fmt.Fprintf(w, "  %-32s %12.4f\n", k, latest.Features[k])
		}
	}

	_, _ = fmt.Fprintf(w, "\nPredictions (%d)\n", len(rep.Predictions))
	for _, p := range rep.Predictions {
		printPrediction(w, p)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion inspect
