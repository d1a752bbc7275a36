package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Steps           []FixtureStep           `json:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureStep is one recorded publication. Snapshot holds the task record
// in its persisted JSON form.
type FixtureStep struct {
	StepID   string          `json:"step_id"`
	Task     string          `json:"task"`
	At       time.Time       `json:"at"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// FixtureExpectedResult captures the expected outcome per step. LoadClass
// is only checked for emitted steps.
type FixtureExpectedResult struct {
	StepID    string `json:"step_id"`
	Action    string `json:"action"`
	LoadClass string `json:"load_class,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToStep decodes the recorded snapshot. Steps without a snapshot body
// become steps with a nil snapshot, which Replay skips.
func (fs *FixtureStep) ToStep() (Step, error) {
	step := Step{StepID: fs.StepID, At: fs.At}
	if len(fs.Snapshot) == 0 || string(fs.Snapshot) == "null" {
		return step, nil
	}
	s, err := snapshot.Decode(fs.Task, fs.Snapshot)
	if err != nil {
		return Step{}, fmt.Errorf("step %s: %w", fs.StepID, err)
	}
	step.Snapshot = s
	return step, nil
}

// ToSteps converts every fixture step.
func (f *Fixture) ToSteps() ([]Step, error) {
	steps := make([]Step, 0, len(f.Steps))
	for i := range f.Steps {
		s, err := f.Steps[i].ToStep()
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// Mismatch describes one result that differs from the fixture.
type Mismatch struct {
	Index    int
	Expected FixtureExpectedResult
	Actual   Result
}

func (m Mismatch) String() string {
	got := m.Actual.Action
	if m.Actual.Prediction != nil {
		got += "/" + m.Actual.Prediction.LoadClass
	}
	want := m.Expected.Action
	if m.Expected.LoadClass != "" {
		want += "/" + m.Expected.LoadClass
	}
	return fmt.Sprintf("step %d (%s): expected %s, got %s", m.Index, m.Expected.StepID, want, got)
}

// Check compares results against the fixture's expectations. A length
// difference is reported as an error.
func (f *Fixture) Check(results []Result) ([]Mismatch, error) {
	if len(results) != len(f.ExpectedResults) {
		return nil, fmt.Errorf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}
	var out []Mismatch
	for i, want := range f.ExpectedResults {
		got := results[i]
		ok := got.StepID == want.StepID && got.Action == want.Action
		if ok && want.LoadClass != "" {
			ok = got.Prediction != nil && got.Prediction.LoadClass == want.LoadClass
		}
		if !ok {
			out = append(out, Mismatch{Index: i, Expected: want, Actual: got})
		}
	}
	return out, nil
}

// #endregion fixture-loader

// #region fixture-export

// NewFixtureStep records s as it would be persisted.
func NewFixtureStep(stepID string, s snapshot.Snapshot, at time.Time) (FixtureStep, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return FixtureStep{}, fmt.Errorf("marshal step %s: %w", stepID, err)
	}
	return FixtureStep{StepID: stepID, Task: s.TaskID(), At: at.UTC(), Snapshot: body}, nil
}

// NewFixture replays steps with the default config and records the
// outcomes as the expected results, freezing current behaviour as a
// regression baseline.
func NewFixture(description string, steps []FixtureStep) (*Fixture, error) {
	f := &Fixture{Description: description, Steps: steps}
	decoded, err := f.ToSteps()
	if err != nil {
		return nil, err
	}
	for _, r := range Replay(decoded, DefaultConfig()) {
		exp := FixtureExpectedResult{StepID: r.StepID, Action: r.Action}
		if r.Prediction != nil {
			exp.LoadClass = r.Prediction.LoadClass
		}
		f.ExpectedResults = append(f.ExpectedResults, exp)
	}
	return f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(f *Fixture, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-export
