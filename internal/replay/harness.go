package replay

import (
	"time"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/loadmodel"
	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region types
// Step is one recorded snapshot publication.
type Step struct {
	StepID   string
	Snapshot snapshot.Snapshot
	At       time.Time
}

// Predictor turns a vector into a prediction. loadmodel.Predict is one.
type Predictor func(vec []float64, now time.Time) protocol.Prediction

// Config bundles the engine and predictor for a replay run.
type Config struct {
	Engine    *features.Engine
	Predictor Predictor
}

// DefaultConfig uses the v1 calculators and the rule-based model.
func DefaultConfig() Config {
	return Config{
		Engine:    features.NewEngine(nil),
		Predictor: loadmodel.Predict,
	}
}

// Step outcomes.
const (
	ActionEmit       = "emit"
	ActionSuppressed = "suppressed"
	ActionSkipped    = "skipped"
)

// Result captures what one step produced.
type Result struct {
	StepID string
	Action string
	Reason string

	Features []float64

	// nil unless Action is ActionEmit
	Prediction *protocol.Prediction
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps int
	Emits      int
	Suppressed int
	Skipped    int
	Classes    map[string]int
	Final      []float64
}

// #endregion types

// #region replay
// Replay feeds each step's snapshot into the latest-per-task view, the way
// the bus does, then computes and classifies the vector. The run is pure:
// the same steps and config always give the same results.
func Replay(steps []Step, config Config) []Result {
	if config.Engine == nil {
		config.Engine = features.NewEngine(nil)
	}
	if config.Predictor == nil {
		config.Predictor = loadmodel.Predict
	}

	var latest features.Snapshots
	results := make([]Result, 0, len(steps))
	for _, step := range steps {
		if !apply(&latest, step.Snapshot) {
			results = append(results, Result{
				StepID: step.StepID,
				Action: ActionSkipped,
				Reason: "no snapshot for a known task",
			})
			continue
		}

		vec := config.Engine.Compute(latest)
		if !features.Validate(vec) {
			results = append(results, Result{
				StepID:   step.StepID,
				Action:   ActionSuppressed,
				Reason:   "invalid vector",
				Features: vec,
			})
			continue
		}

		pred := config.Predictor(vec, step.At)
		results = append(results, Result{
			StepID:     step.StepID,
			Action:     ActionEmit,
			Reason:     pred.LoadClass,
			Features:   vec,
			Prediction: &pred,
		})
	}
	return results
}

func apply(latest *features.Snapshots, s snapshot.Snapshot) bool {
	switch d := s.(type) {
	case *snapshot.Task1Data:
		if d == nil {
			return false
		}
		latest.Task1 = d.Clone()
	case *snapshot.Task2Data:
		if d == nil {
			return false
		}
		latest.Task2 = d.Clone()
	case *snapshot.Task3Data:
		if d == nil {
			return false
		}
		latest.Task3 = d.Clone()
	default:
		return false
	}
	return true
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{
		TotalSteps: len(results),
		Classes:    make(map[string]int),
	}
	for _, r := range results {
		switch r.Action {
		case ActionEmit:
			s.Emits++
			s.Classes[r.Prediction.LoadClass]++
		case ActionSuppressed:
			s.Suppressed++
		case ActionSkipped:
			s.Skipped++
		}
		if r.Features != nil {
			s.Final = r.Features
		}
	}
	return s
}

// #endregion replay
