package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyra-12/cogniviz/internal/replay"
	"github.com/dyra-12/cogniviz/internal/store"
)

// #region export

func newExportCmd(g *globals) *cobra.Command {
	var outPath, description string

	cmd := &cobra.Command{
		Use:   "export-fixture --out <path>",
		Short: "Write stored snapshots as a replay fixture with current outcomes as expectations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outPath == "" {
				return errors.New("--out is required")
			}
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			st, err := store.NewStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			recs, err := st.ListSnapshots(ctx)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return errors.New("no snapshots stored")
			}

			// store order is newest first; fixtures run oldest first
			steps := make([]replay.FixtureStep, 0, len(recs))
			for i := len(recs) - 1; i >= 0; i-- {
				snap, err := st.LoadSnapshot(ctx, recs[i].Key)
				if err != nil {
					return err
				}
				step, err := replay.NewFixtureStep(fmt.Sprintf("s%d", len(steps)+1), snap, recs[i].SavedAt)
				if err != nil {
					return err
				}
				steps = append(steps, step)
			}

			if description == "" {
				description = fmt.Sprintf("Export of %d stored snapshots from %s", len(steps), cfg.DBPath)
			}
			f, err := replay.NewFixture(description, steps)
			if err != nil {
				return err
			}
			if err := replay.WriteFixture(f, outPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote fixture to %s (%d steps)\n", outPath, len(steps))
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output fixture JSON path")
	cmd.Flags().StringVar(&description, "description", "", "fixture description")
	return cmd
}

// #endregion export
