package worker

import (
	"time"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region inbox

// Message is a command accepted by the worker.
type Message interface{ isMessage() }

// Init sets the interval and starts the timer. A zero interval keeps the
// current one.
type Init struct{ Interval time.Duration }

// SetTaskData replaces the latest snapshot of one task.
type SetTaskData struct {
	TaskID string
	Data   snapshot.Snapshot
}

// ForceCompute emits a vector immediately with source "force".
type ForceCompute struct{}

// Pause stops the timer. Snapshots are kept.
type Pause struct{}

// Resume restarts the timer.
type Resume struct{}

// Terminate stops the timer and ends the worker.
type Terminate struct{}

func (Init) isMessage()         {}
func (SetTaskData) isMessage()  {}
func (ForceCompute) isMessage() {}
func (Pause) isMessage()        {}
func (Resume) isMessage()       {}
func (Terminate) isMessage()    {}

// #endregion inbox

// #region outbox

// Emission sources.
const (
	SourceInterval = "interval"
	SourceForce    = "force"
)

// Output is an event produced by the worker.
type Output interface{ isOutput() }

// Features is one validated vector.
type Features struct {
	SchemaVersion string    `json:"schemaVersion"`
	Features      []float64 `json:"features"`
	Source        string    `json:"source"`
	EmittedAt     time.Time `json:"-"`
	IntervalMs    int64     `json:"intervalMs"`
}

// Error reports a failed computation.
type Error struct {
	Message string
}

func (Features) isOutput() {}
func (Error) isOutput()    {}

// #endregion outbox
