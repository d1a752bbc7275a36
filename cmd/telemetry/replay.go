package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dyra-12/cogniviz/internal/replay"
)

// #region replay

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <fixture>",
		Short: "Replay a recorded snapshot fixture and compare predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			steps, err := f.ToSteps()
			if err != nil {
				return err
			}
			results := replay.Replay(steps, replay.DefaultConfig())
			diverge, err := printComparison(cmd.OutOrStdout(), f, results)
			if err != nil {
				return err
			}
			if diverge > 0 {
				return fmt.Errorf("%d of %d steps diverge", diverge, len(results))
			}
			return nil
		},
	}
}

// printComparison outputs a comparison table and returns how many steps
// diverge from the fixture.
func printComparison(w io.Writer, f *replay.Fixture, results []replay.Result) (int, error) {
	mismatches, err := f.Check(results)
	if err != nil {
		return 0, err
	}
	bad := make(map[int]bool, len(mismatches))
	for _, m := range mismatches {
		bad[m.Index] = true
	}

	_, _ = fmt.Fprintf(w, "%-12s| %-18s| %-18s| %s\n", "Step", "Expected", "Replayed", "Match")
	_, _ = fmt.Fprintf(w, "%-12s+%-19s+%-19s+%s\n",
		"------------", "-------------------", "-------------------", "------")
	for i, r := range results {
		exp := f.ExpectedResults[i]
		want := exp.Action
		if exp.LoadClass != "" {
			want += "/" + exp.LoadClass
		}
		got := r.Action
		if r.Prediction != nil {
			got += "/" + r.Prediction.LoadClass
		}
		match := "OK"
		if bad[i] {
			match = "DIFF"
		}
		_, _ = fmt.Fprintf(w, "%-12s| %-18s| %-18s| %s\n", r.StepID, want, got, match)
	}

	s := replay.Summarize(results)
	_, _ = fmt.Fprintf(w, "\nSummary: %d total, %d emitted, %d suppressed, %d skipped, %d diverge\n",
		s.TotalSteps, s.Emits, s.Suppressed, s.Skipped, len(mismatches))
	return len(mismatches), nil
}

// #endregion replay
