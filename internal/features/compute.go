package features

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region input

// Snapshots bundles the latest known record per task. Any field may be nil.
type Snapshots struct {
	Task1 *snapshot.Task1Data
	Task2 *snapshot.Task2Data
	Task3 *snapshot.Task3Data
}

// Empty reports whether no task has produced a snapshot yet.
func (s Snapshots) Empty() bool {
	return s.Task1 == nil && s.Task2 == nil && s.Task3 == nil
}

// #endregion input

// #region engine

// Calculator derives one slot. It may assume nothing about which tasks are present.
type Calculator func(Snapshots) float64

// Engine maps snapshots to a schema vector, isolating each slot's calculator.
type Engine struct {
	logger *zap.Logger
	calcs  [Len]Calculator
}

// NewEngine creates an Engine with the v1 calculators. logger may be nil.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, calcs: v1Calculators}
}

var defaultEngine = NewEngine(nil)

// Compute derives the v1 vector without diagnostics.
func Compute(s Snapshots) []float64 {
	return defaultEngine.Compute(s)
}

// Compute derives the vector. A calculator that panics or returns a
// non-finite value contributes 0 and logs a warning.
func (e *Engine) Compute(s Snapshots) []float64 {
	vec := make([]float64, Len)
	if s.Empty() {
		return vec
	}
	for i, calc := range e.calcs {
		v, err := e.safe(calc, s)
		if err != nil {
			e.logger.Warn("feature calculator failed",
				zap.String("feature", keys[i]),
				zap.Error(err))
			continue
		}
		vec[i] = v
	}
	return vec
}

func (e *Engine) safe(calc Calculator, s Snapshots) (v float64, err error) {
	if calc == nil {
		return 0, nil
	}
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("panic: %v", r)
		}
	}()
	v = calc(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %v", v)
	}
	return v, nil
}

// #endregion engine

// #region calculators

var v1Calculators = [Len]Calculator{
	task1(func(d *snapshot.Task1Data) float64 { return float64(d.SummaryMetrics.TotalTimeMs) }),
	task1(func(d *snapshot.Task1Data) float64 { return float64(len(d.FieldInteractions)) }),
	task1(func(d *snapshot.Task1Data) float64 { return float64(d.SummaryMetrics.ErrorCount) }),
	task1(func(d *snapshot.Task1Data) float64 { return float64(d.SummaryMetrics.HelpRequests) }),
	task1(func(d *snapshot.Task1Data) float64 { return float64(d.TaskSpecificMetrics.ZipCodeCorrections) }),
	task2(func(d *snapshot.Task2Data) float64 { return float64(d.SummaryMetrics.TotalTimeMs) }),
	task2(func(d *snapshot.Task2Data) float64 { return float64(d.SummaryMetrics.ErrorCount) }),
	task2(func(d *snapshot.Task2Data) float64 { return float64(d.FilterInteractions.FilterResets) }),
	task2(func(d *snapshot.Task2Data) float64 { return derefFloat(d.MouseAnalytics.MouseEntropy) }),
	task2(func(d *snapshot.Task2Data) float64 { return derefInt(d.DecisionMaking.DecisionTimeMs) }),
	task3(func(d *snapshot.Task3Data) float64 { return float64(d.TotalActions) }),
	task3(func(d *snapshot.Task3Data) float64 { return float64(d.Budget.BudgetOverrunEvents) }),
	task3(func(d *snapshot.Task3Data) float64 { return float64(d.Budget.CostAdjustmentActions) }),
	task3(func(d *snapshot.Task3Data) float64 { return float64(len(d.IdlePeriods)) }),
	task3(func(d *snapshot.Task3Data) float64 { return d.Hotels.MouseEntropy }),
	task3(func(d *snapshot.Task3Data) float64 { return d.Meetings.MouseEntropy }),
}

func task1(f func(*snapshot.Task1Data) float64) Calculator {
	return func(s Snapshots) float64 {
		if s.Task1 == nil {
			return 0
		}
		return f(s.Task1)
	}
}

func task2(f func(*snapshot.Task2Data) float64) Calculator {
	return func(s Snapshots) float64 {
		if s.Task2 == nil {
			return 0
		}
		return f(s.Task2)
	}
}

func task3(f func(*snapshot.Task3Data) float64) Calculator {
	return func(s Snapshots) float64 {
		if s.Task3 == nil {
			return 0
		}
		return f(s.Task3)
	}
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefInt(i *int64) float64 {
	if i == nil {
		return 0
	}
	return float64(*i)
}

// #endregion calculators
