package snapshot

import "time"

// #region task2-types

// Task2Summary holds the product task's headline counters.
type Task2Summary struct {
	TotalTimeMs int64 `json:"total_time_ms"`
	Success     bool  `json:"success"`
	ErrorCount  int   `json:"error_count"`
}

// FilterUse is one filter change.
type FilterUse struct {
	FilterType  string    `json:"filter_type"`
	Action      string    `json:"action"`
	ValueBefore string    `json:"value_before"`
	ValueAfter  string    `json:"value_after"`
	Timestamp   time.Time `json:"timestamp"`
}

// FilterInteractions groups filter activity.
type FilterInteractions struct {
	FilterUses     []FilterUse `json:"filter_uses"`
	FilterSequence []string    `json:"filter_sequence"`
	FilterResets   int         `json:"filter_resets"`
}

// ProductView is one completed hover over a product.
type ProductView struct {
	ProductID       string `json:"product_id"`
	HoverDurationMs int64  `json:"hover_duration_ms"`
}

// HoverSwitch records a change of hovered product.
type HoverSwitch struct {
	From   string `json:"from"`
	To     string `json:"to"`
	TimeMs int64  `json:"time_ms"`
}

// ProductExploration groups hover activity.
type ProductExploration struct {
	ProductsViewed     []ProductView `json:"products_viewed"`
	RapidHoverSwitches int           `json:"rapid_hover_switches"`
	HoverOscillations  int           `json:"hover_oscillations"`
	HoverSwitches      []HoverSwitch `json:"hover_switches"`
}

// DecisionMaking holds decision timing. Nil means not yet measured.
type DecisionMaking struct {
	TimeToFirstFilter *int64 `json:"time_to_first_filter"`
	DecisionTimeMs    *int64 `json:"decision_time_ms"`
	ComparisonCount   int    `json:"comparison_count"`
}

// ClickPrecision is the offset between a click and its target's center.
type ClickPrecision struct {
	Target   string  `json:"target"`
	ClickPos Point   `json:"click_pos"`
	Center   Point   `json:"center_pos"`
	Distance float64 `json:"distance"`
}

// MouseAnalytics holds pointer-derived measures.
type MouseAnalytics struct {
	MouseEntropy   *float64         `json:"mouse_entropy"`
	ClickPrecision []ClickPrecision `json:"click_precision"`
}

// Task2Data is the product-filtering task record.
type Task2Data struct {
	Timestamps         Timestamps         `json:"timestamps"`
	SummaryMetrics     Task2Summary       `json:"summary_metrics"`
	FilterInteractions FilterInteractions `json:"filter_interactions"`
	ProductExploration ProductExploration `json:"product_exploration"`
	DecisionMaking     DecisionMaking     `json:"decision_making"`
	MouseAnalytics     MouseAnalytics     `json:"mouse_analytics"`
	InternalErrors     []InternalError    `json:"internal_errors"`
}

// #endregion task2-types

// #region task2-clone

func (d *Task2Data) TaskID() string { return Task2 }

// Clone returns a deep copy of the record.
func (d *Task2Data) Clone() *Task2Data {
	if d == nil {
		return nil
	}
	c := *d
	c.Timestamps = d.Timestamps.clone()
	c.FilterInteractions.FilterUses = cloneSlice(d.FilterInteractions.FilterUses)
	c.FilterInteractions.FilterSequence = cloneSlice(d.FilterInteractions.FilterSequence)
	c.ProductExploration.ProductsViewed = cloneSlice(d.ProductExploration.ProductsViewed)
	c.ProductExploration.HoverSwitches = cloneSlice(d.ProductExploration.HoverSwitches)
	c.DecisionMaking.TimeToFirstFilter = cloneInt(d.DecisionMaking.TimeToFirstFilter)
	c.DecisionMaking.DecisionTimeMs = cloneInt(d.DecisionMaking.DecisionTimeMs)
	c.MouseAnalytics.MouseEntropy = cloneFloat(d.MouseAnalytics.MouseEntropy)
	c.MouseAnalytics.ClickPrecision = cloneSlice(d.MouseAnalytics.ClickPrecision)
	c.InternalErrors = cloneSlice(d.InternalErrors)
	return &c
}

func (d *Task2Data) CloneSnapshot() Snapshot { return d.Clone() }

// #endregion task2-clone
