package snapshot

import "time"

// #region task-ids

// Task identifiers used as bus keys and persistence prefixes.
const (
	Task1 = "task1"
	Task2 = "task2"
	Task3 = "task3"
)

// #endregion task-ids

// #region snapshot-interface

// Snapshot is a per-task record that can produce an independent deep copy.
type Snapshot interface {
	TaskID() string
	CloneSnapshot() Snapshot
}

// #endregion snapshot-interface

// #region shared

// InternalError records a recovered failure inside a collector.
type InternalError struct {
	TS      time.Time `json:"ts"`
	Message string    `json:"message"`
}

// Point is a pointer position in client coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Timestamps brackets a task's lifetime. End is nil while the task runs.
type Timestamps struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func (t Timestamps) clone() Timestamps {
	return Timestamps{Start: cloneTime(t.Start), End: cloneTime(t.End)}
}

// #endregion shared
