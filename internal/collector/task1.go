package collector

import (
	"context"
	"time"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// Task1 storage key, matching the form task's persisted record.
const Task1Key = "task_1_data"

const (
	zipCodeField        = "zipCode"
	shippingMethodField = "shippingMethod"
)

// #region task1

// Task1 records the shipping-form task.
type Task1 struct {
	base
	data *snapshot.Task1Data

	focusStart     map[string]time.Time
	lastShipping   string
	shippingPicked bool
}

// NewTask1 creates a form collector. The start timestamp is set on creation
// and can be reset by MarkStart.
func NewTask1(opts ...Option) *Task1 {
	c := &Task1{data: &snapshot.Task1Data{}, focusStart: make(map[string]time.Time)}
	c.setup(opts,
		func() snapshot.Snapshot { return c.data.Clone() },
		func(e snapshot.InternalError) { c.data.InternalErrors = boundedAppend(c.data.InternalErrors, e) })
	c.data.Timestamps.Start = ptr(c.now())
	return c
}

// Snapshot returns a deep copy of the record.
func (c *Task1) Snapshot() *snapshot.Task1Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Clone()
}

// Save persists the record under Task1Key.
func (c *Task1) Save(ctx context.Context) error {
	return c.save(ctx, Task1Key)
}

// #endregion task1

// #region task1-lifecycle

// MarkStart restarts the task clock.
func (c *Task1) MarkStart() {
	c.run("markStart", func() publishMode {
		c.data.Timestamps.Start = ptr(c.now())
		c.data.Timestamps.End = nil
		return publishNow
	})
}

// MarkEnd stamps the end time, total duration and outcome.
func (c *Task1) MarkEnd(success bool) {
	c.run("markEnd", func() publishMode {
		end := c.now()
		c.data.Timestamps.End = ptr(end)
		if start := c.data.Timestamps.Start; start != nil {
			c.data.SummaryMetrics.TotalTimeMs = msBetween(*start, end)
		}
		c.data.SummaryMetrics.Success = success
		return publishNow
	})
}

// RecordError counts a validation error.
func (c *Task1) RecordError() {
	c.run("recordError", func() publishMode {
		c.data.SummaryMetrics.ErrorCount++
		return publishNow
	})
}

// RecordHelp counts a help request.
func (c *Task1) RecordHelp() {
	c.run("recordHelp", func() publishMode {
		c.data.SummaryMetrics.HelpRequests++
		return publishNow
	})
}

// #endregion task1-lifecycle

// #region task1-fields

// Focus starts the focus timer for field and extends the field sequence.
func (c *Task1) Focus(field string) {
	c.run("focus", func() publishMode {
		c.focusStart[field] = c.now()
		seq := c.data.TaskSpecificMetrics.FieldSequence
		if len(seq) == 0 || seq[len(seq)-1] != field {
			c.data.TaskSpecificMetrics.FieldSequence = append(seq, field)
		}
		return publishThrottled
	})
}

// Blur adds the elapsed focus time to field's cumulative total.
func (c *Task1) Blur(field string) {
	c.run("blur", func() publishMode {
		start, ok := c.focusStart[field]
		if !ok {
			return publishNone
		}
		delete(c.focusStart, field)
		c.field(field).FocusTimeMs += msBetween(start, c.now())
		return publishThrottled
	})
}

// Change counts an edit of field. Zip-code edits double as corrections;
// a shipping method differing from the previous choice counts as a change.
func (c *Task1) Change(field, value string) {
	c.run("change", func() publishMode {
		f := c.field(field)
		f.EditCount++
		switch field {
		case zipCodeField:
			c.data.TaskSpecificMetrics.ZipCodeCorrections = f.EditCount
		case shippingMethodField:
			if c.shippingPicked && c.lastShipping != value {
				c.data.TaskSpecificMetrics.ShippingMethodChanges++
			}
			c.lastShipping = value
			c.shippingPicked = true
		}
		return publishThrottled
	})
}

// KeyDown counts backspaces inside field.
func (c *Task1) KeyDown(field, key string) {
	c.run("keyDown", func() publishMode {
		if key != "Backspace" {
			return publishNone
		}
		c.field(field).BackspaceCount++
		return publishThrottled
	})
}

// Paste records a paste into target.
func (c *Task1) Paste(target string) {
	c.run("paste", func() publishMode {
		c.data.MouseData = boundedAppend(c.data.MouseData, snapshot.InputEvent{
			Type: "paste", Timestamp: c.now(), Target: target,
		})
		return publishThrottled
	})
}

// RecordInput captures a global mouse or keyboard event. Pointer moves are
// sampled at most once per SampleInterval.
func (c *Task1) RecordInput(ev snapshot.InputEvent) {
	c.run("recordInput", func() publishMode {
		if ev.Type == "mouse_move" && !c.allowSample() {
			return publishNone
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = c.now()
		}
		if ev.Target == "" {
			ev.Target = "unknown"
		}
		c.data.MouseData = boundedAppend(c.data.MouseData, ev)
		return publishThrottled
	})
}

// field returns the interaction entry for name, creating it on first use.
func (c *Task1) field(name string) *snapshot.FieldInteraction {
	for i := range c.data.FieldInteractions {
		if c.data.FieldInteractions[i].FieldName == name {
			return &c.data.FieldInteractions[i]
		}
	}
	c.data.FieldInteractions = append(c.data.FieldInteractions, snapshot.FieldInteraction{FieldName: name})
	return &c.data.FieldInteractions[len(c.data.FieldInteractions)-1]
}

// #endregion task1-fields
