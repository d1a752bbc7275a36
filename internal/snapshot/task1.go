package snapshot

import "time"

// #region task1-types

// Task1Summary holds the form task's headline counters.
type Task1Summary struct {
	TotalTimeMs  int64 `json:"total_time_ms"`
	Success      bool  `json:"success"`
	ErrorCount   int   `json:"error_count"`
	HelpRequests int   `json:"help_requests"`
}

// FieldInteraction aggregates everything recorded for one form field.
type FieldInteraction struct {
	FieldName      string `json:"field_name"`
	FocusTimeMs    int64  `json:"focus_time_ms"`
	BackspaceCount int    `json:"backspace_count"`
	EditCount      int    `json:"edit_count"`
}

// InputEvent is a captured global mouse or keyboard event.
type InputEvent struct {
	Type      string    `json:"type"` // mouse_move | click | key_down | key_up | paste
	Timestamp time.Time `json:"timestamp"`
	Target    string    `json:"target"`
	X         float64   `json:"x,omitempty"`
	Y         float64   `json:"y,omitempty"`
	Key       string    `json:"key,omitempty"`
}

// Task1Specific holds form-task specific metrics.
type Task1Specific struct {
	ZipCodeCorrections    int      `json:"zip_code_corrections"`
	ShippingMethodChanges int      `json:"shipping_method_changes"`
	FieldSequence         []string `json:"field_sequence"`
}

// Task1Data is the shipping-form task record.
type Task1Data struct {
	Timestamps          Timestamps         `json:"timestamps"`
	SummaryMetrics      Task1Summary       `json:"summary_metrics"`
	FieldInteractions   []FieldInteraction `json:"field_interactions"`
	MouseData           []InputEvent       `json:"mouse_data"`
	TaskSpecificMetrics Task1Specific      `json:"task_specific_metrics"`
	InternalErrors      []InternalError    `json:"internal_errors"`
}

// #endregion task1-types

// #region task1-clone

func (d *Task1Data) TaskID() string { return Task1 }

// Clone returns a deep copy of the record.
func (d *Task1Data) Clone() *Task1Data {
	if d == nil {
		return nil
	}
	c := *d
	c.Timestamps = d.Timestamps.clone()
	c.FieldInteractions = cloneSlice(d.FieldInteractions)
	c.MouseData = cloneSlice(d.MouseData)
	c.TaskSpecificMetrics.FieldSequence = cloneSlice(d.TaskSpecificMetrics.FieldSequence)
	c.InternalErrors = cloneSlice(d.InternalErrors)
	return &c
}

func (d *Task1Data) CloneSnapshot() Snapshot { return d.Clone() }

// #endregion task1-clone
