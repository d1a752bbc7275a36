package loadmodel

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/protocol"
)

// ModelVersion identifies the rule-based model in predictions.
const ModelVersion = "mock-rules-v1"

// Thresholds on the aggregate load score. Placeholder values, not a
// validated model.
const (
	HighThreshold   = 0.6
	MediumThreshold = 0.35
)

const topContributors = 3

// #region scores

// Scores are the derived signals the rule combines.
type Scores struct {
	ConstraintViolation  float64
	SchedulingDifficulty float64
	IdleTime             float64
	Load                 float64
}

// Derive computes the rule inputs from a v1 vector. Missing slots read as 0.
func Derive(vec []float64) Scores {
	at := func(key string) float64 {
		i := features.Index(key)
		if i < 0 || i >= len(vec) || math.IsNaN(vec[i]) || math.IsInf(vec[i], 0) {
			return 0
		}
		return vec[i]
	}
	errors := at("task1_error_count") + at("task2_error_count")
	overruns := at("task3_budget_overruns")
	violation := clamp01((errors + 2*overruns) / 10)

	// Meetings entropy is bounded by log2 of the 10x10 grid.
	meetingEntropy := clamp01(at("task3_mouse_entropy_meetings") / math.Log2(100))
	adjustments := clamp01(at("task3_cost_adjustments") / 8)
	scheduling := 0.5*meetingEntropy + 0.5*adjustments

	idle := clamp01(at("task3_idle_periods") / 10)

	return Scores{
		ConstraintViolation:  violation,
		SchedulingDifficulty: scheduling,
		IdleTime:             idle,
		Load:                 roundScore(violation*0.4 + scheduling*0.4 + idle*0.2),
	}
}

// roundScore snaps the load to 1e-9 so weighted sums that land on a
// threshold compare equal to it.
func roundScore(x float64) float64 {
	return math.Round(x*1e9) / 1e9
}

// #endregion scores

// #region predict

// Predict maps a vector to a load class with shaped probabilities, the
// top contributing slots and an explanation.
func Predict(vec []float64, now time.Time) protocol.Prediction {
	s := Derive(vec)
	class, probs := classify(s.Load)
	shap := contributors(vec)
	return protocol.Prediction{
		LoadClass:     class,
		Probabilities: probs,
		Shap:          shap,
		Explanation:   explain(class, shap, probs),
		ModelVersion:  ModelVersion,
		ReceivedAt:    now.UnixMilli(),
	}
}

func classify(score float64) (string, protocol.Probabilities) {
	var class string
	var p protocol.Probabilities
	switch {
	case score > HighThreshold:
		class = protocol.LoadHigh
		p = protocol.Probabilities{
			Low:    math.Max(0, 0.15-(score-0.6)*0.3),
			Medium: math.Max(0, 0.35-(score-0.6)*0.5),
			High:   math.Min(1, 0.5+(score-0.6)*1.25),
		}
	case score > MediumThreshold:
		class = protocol.LoadMedium
		p = protocol.Probabilities{
			Low:    math.Max(0, 0.5-(score-0.35)*1.4),
			Medium: 0.45 + (score-0.35)*0.4,
			High:   math.Max(0, 0.05+(score-0.35)*0.6),
		}
	default:
		class = protocol.LoadLow
		p = protocol.Probabilities{
			Low:    0.7 + (0.35-score)*0.8,
			Medium: math.Max(0, 0.25-(0.35-score)*0.5),
			High:   math.Max(0, 0.05-(0.35-score)*0.1),
		}
	}
	total := p.Low + p.Medium + p.High
	p.Low /= total
	p.Medium /= total
	p.High /= total
	return class, p
}

// contributors weights the first three slots higher and returns the
// largest three.
func contributors(vec []float64) []protocol.Contribution {
	keys := features.Keys()
	out := make([]protocol.Contribution, 0, len(vec))
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		name := fmt.Sprintf("feature_%d", i)
		if i < len(keys) {
			name = keys[i]
		}
		w := 0.3
		if i < 3 {
			w = 0.8
		}
		out = append(out, protocol.Contribution{Feature: name, Value: v, Contribution: v * w})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Contribution > out[b].Contribution })
	if len(out) > topContributors {
		out = out[:topContributors]
	}
	return out
}

func explain(class string, top []protocol.Contribution, p protocol.Probabilities) string {
	feature := "unknown"
	if len(top) > 0 {
		feature = strings.ReplaceAll(top[0].Feature, "_", " ")
	}
	var conf float64
	switch class {
	case protocol.LoadHigh:
		conf = p.High
	case protocol.LoadMedium:
		conf = p.Medium
	default:
		conf = p.Low
	}
	pct := int(math.Round(conf * 100))
	switch class {
	case protocol.LoadHigh:
		return fmt.Sprintf("High cognitive load detected (%d%% confidence). Primary driver: %s. Consider reducing task complexity.", pct, feature)
	case protocol.LoadMedium:
		return fmt.Sprintf("Moderate cognitive load (%d%% confidence). Main factor: %s. User is managing but approaching limits.", pct, feature)
	}
	return fmt.Sprintf("Low cognitive load (%d%% confidence). User is comfortable with current task demands.", pct)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion predict
