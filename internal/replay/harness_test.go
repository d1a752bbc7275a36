package replay

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/snapshot"
)

func emptyTask1() *snapshot.Task1Data { return &snapshot.Task1Data{} }

var at = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// 1. Later snapshots of one task replace earlier ones; other tasks persist.
func TestReplay_LatestPerTask(t *testing.T) {
	first := &snapshot.Task1Data{SummaryMetrics: snapshot.Task1Summary{ErrorCount: 3}}
	second := &snapshot.Task1Data{SummaryMetrics: snapshot.Task1Summary{ErrorCount: 1}}
	other := &snapshot.Task2Data{FilterInteractions: snapshot.FilterInteractions{FilterResets: 4}}

	results := Replay([]Step{
		{StepID: "a", Snapshot: first, At: at},
		{StepID: "b", Snapshot: other, At: at},
		{StepID: "c", Snapshot: second, At: at},
	}, DefaultConfig())

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := features.Compute(features.Snapshots{Task1: second, Task2: other})
	if diff := cmp.Diff(want, results[2].Features); diff != "" {
		t.Errorf("final vector mismatch (-want +got):\n%s", diff)
	}
}

// 2. Steps do not alias their inputs.
func TestReplay_ClonesSnapshots(t *testing.T) {
	d := &snapshot.Task1Data{SummaryMetrics: snapshot.Task1Summary{ErrorCount: 2}}
	results := Replay([]Step{{StepID: "a", Snapshot: d}}, DefaultConfig())
	d.SummaryMetrics.ErrorCount = 9

	idx := features.Index("task1_error_count")
	if got := results[0].Features[idx]; got != 2 {
		t.Errorf("expected error count 2, got %v", got)
	}
}

// 3. Steps without a usable snapshot are skipped before the predictor.
func TestReplay_MissingSnapshotSkipped(t *testing.T) {
	called := false
	cfg := Config{
		Engine: features.NewEngine(nil),
		Predictor: func([]float64, time.Time) protocol.Prediction {
			called = true
			return protocol.Prediction{}
		},
	}
	var nilTask *snapshot.Task2Data
	results := Replay([]Step{{StepID: "a", Snapshot: nilTask}, {StepID: "b"}}, cfg)
	for _, r := range results {
		if r.Action != ActionSkipped {
			t.Errorf("step %s: expected skipped, got %s", r.StepID, r.Action)
		}
	}
	if called {
		t.Error("predictor should not run for skipped steps")
	}
}

// 4. The predictor sees the step time, so runs are reproducible.
func TestReplay_Deterministic(t *testing.T) {
	steps := []Step{
		{StepID: "a", Snapshot: &snapshot.Task1Data{SummaryMetrics: snapshot.Task1Summary{ErrorCount: 4}}, At: at},
		{StepID: "b", Snapshot: &snapshot.Task3Data{IdlePeriods: make([]snapshot.IdlePeriod, 6)}, At: at.Add(time.Minute)},
	}
	a := Replay(steps, DefaultConfig())
	b := Replay(steps, DefaultConfig())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("replay not deterministic:\n%s", diff)
	}
	if got := a[1].Prediction.ReceivedAt; got != at.Add(time.Minute).UnixMilli() {
		t.Errorf("expected ReceivedAt from step time, got %d", got)
	}
}

// 5. Summarize counts outcomes and keeps the last computed vector.
func TestSummarize(t *testing.T) {
	results := Replay([]Step{
		{StepID: "a", Snapshot: emptyTask1()},
		{StepID: "b"},
		{StepID: "c", Snapshot: &snapshot.Task2Data{}},
	}, DefaultConfig())

	s := Summarize(results)
	if s.TotalSteps != 3 || s.Emits != 2 || s.Skipped != 1 || s.Suppressed != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.Classes[protocol.LoadLow] != 2 {
		t.Errorf("expected 2 Low predictions, got %v", s.Classes)
	}
	if len(s.Final) != features.Len {
		t.Errorf("expected final vector of %d slots, got %d", features.Len, len(s.Final))
	}
}
