package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region fixture-tests

// TestFixture_Session replays the recorded session and compares every
// step against the expected action and class. Drift in the calculators or
// the rule thresholds shows up here first.
func TestFixture_Session(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "session.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	steps, err := f.ToSteps()
	if err != nil {
		t.Fatalf("ToSteps: %v", err)
	}

	results := Replay(steps, DefaultConfig())

	mismatches, err := f.Check(results)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	for _, m := range mismatches {
		t.Error(m.String())
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "nope.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

func TestLoadFixture_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestToStep_UnknownTask(t *testing.T) {
	fs := FixtureStep{StepID: "x", Task: "task9", Snapshot: []byte(`{}`)}
	if _, err := fs.ToStep(); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestCheck_ReportsMismatch(t *testing.T) {
	f := &Fixture{ExpectedResults: []FixtureExpectedResult{{StepID: "s1", Action: ActionEmit, LoadClass: "High"}}}
	steps := []Step{{StepID: "s1", Snapshot: emptyTask1()}}

	mismatches, err := f.Check(Replay(steps, DefaultConfig()))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(mismatches))
	}
	if got := mismatches[0].String(); got != "step 0 (s1): expected emit/High, got emit/Low" {
		t.Errorf("unexpected mismatch text %q", got)
	}

	if _, err := f.Check(nil); err == nil {
		t.Error("expected length error")
	}
}

// TestNewFixture_RoundTrip exports steps, writes them and checks that a
// replay of the written file matches its own expectations.
func TestNewFixture_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s1, err := NewFixtureStep("s1", &snapshot.Task1Data{SummaryMetrics: snapshot.Task1Summary{ErrorCount: 3}}, at)
	if err != nil {
		t.Fatalf("NewFixtureStep: %v", err)
	}
	s2, err := NewFixtureStep("s2", &snapshot.Task3Data{Budget: snapshot.Budget{BudgetOverrunEvents: 2}}, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("NewFixtureStep: %v", err)
	}
	if s2.Task != snapshot.Task3 {
		t.Errorf("expected task3, got %s", s2.Task)
	}

	f, err := NewFixture("export", []FixtureStep{s1, s2})
	if err != nil {
		t.Fatalf("NewFixture: %v", err)
	}
	if len(f.ExpectedResults) != 2 || f.ExpectedResults[0].LoadClass == "" {
		t.Fatalf("unexpected expectations %+v", f.ExpectedResults)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := WriteFixture(f, path); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	steps, err := loaded.ToSteps()
	if err != nil {
		t.Fatalf("ToSteps: %v", err)
	}
	mismatches, err := loaded.Check(Replay(steps, DefaultConfig()))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(mismatches) != 0 {
		t.Errorf("expected no mismatches, got %v", mismatches)
	}
}

// #endregion fixture-tests
