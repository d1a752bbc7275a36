package snapshot

import "time"

// #region task3-types

// IdlePeriod is a closed interval with no pointer or keyboard activity.
type IdlePeriod struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DurationMs int64     `json:"duration_ms"`
}

// ComponentSwitch records a tab change inside the planner.
type ComponentSwitch struct {
	Tab string    `json:"tab"`
	TS  time.Time `json:"ts"`
}

// ComputedSignals holds counters derived while the task runs.
type ComputedSignals struct {
	RapidSelectionChanges int `json:"rapid_selection_changes"`
	MouseSamplingRateMs   int `json:"mouse_sampling_rate_ms"`
}

// BudgetUpdate is one change to the running trip total.
type BudgetUpdate struct {
	TS       time.Time `json:"ts"`
	NewTotal *float64  `json:"new_total"`
	Cause    string    `json:"cause"`
	ItemID   string    `json:"item_id,omitempty"`
	Price    *float64  `json:"price,omitempty"`
}

// Budget tracks the running total and the overrun/recovery state machine.
type Budget struct {
	CurrentTotal            float64        `json:"current_total"`
	Updates                 []BudgetUpdate `json:"updates"`
	BudgetOverrunEvents     int            `json:"budget_overrun_events"`
	CostAdjustmentActions   int            `json:"cost_adjustment_actions"`
	InOverrun               bool           `json:"in_overrun"`
	OverrunSelectionCounter int            `json:"overrun_selection_counter"`
}

// HoverEvent is one completed hover over a bookable item.
type HoverEvent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTS    time.Time `json:"start_ts"`
	EndTS      time.Time `json:"end_ts"`
	DurationMs int64     `json:"duration_ms"`
}

// Selection is one chosen flight, hotel or transport option.
type Selection struct {
	TS           time.Time `json:"ts"`
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Price        float64   `json:"price"`
	Direction    string    `json:"direction,omitempty"`
	DepTime      time.Time `json:"dep_time,omitzero"`
	ArrTime      time.Time `json:"arr_time,omitzero"`
	FollowsRules *bool     `json:"follows_rules,omitempty"`
	Stars        int       `json:"stars,omitempty"`
	DistanceKm   float64   `json:"distance_km,omitempty"`
	Within5km    *bool     `json:"within_5km,omitempty"`
	Mode         string    `json:"mode,omitempty"`
}

// CategoryMetrics groups hovers, selections and entropy for one booking area.
type CategoryMetrics struct {
	HoverEvents  []HoverEvent `json:"hover_events"`
	Selections   []Selection  `json:"selections"`
	MouseEntropy float64      `json:"mouse_entropy"`
}

// DragAttempt is one drag or drop inside a meeting placement sequence.
type DragAttempt struct {
	StartTS       time.Time `json:"start_ts"`
	AttemptedSlot string    `json:"attempted_slot,omitempty"`
	Valid         *bool     `json:"valid,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	DurationMs    int64     `json:"duration_ms"`
}

// DragSequence collects attempts for one meeting until it is placed.
type DragSequence struct {
	MeetingID           string        `json:"meeting_id"`
	Attempts            []DragAttempt `json:"attempts"`
	Placed              bool          `json:"placed"`
	PlacementDurationMs *int64        `json:"placement_duration_ms"`
	FinalSlot           string        `json:"final_slot,omitempty"`
}

// MeetingMetrics groups scheduling activity.
type MeetingMetrics struct {
	DragAttempts []DragSequence `json:"drag_attempts"`
	MouseEntropy float64        `json:"mouse_entropy"`
}

// Task3Data is the session-scoped trip planning record.
type Task3Data struct {
	SessionID         string            `json:"session_id"`
	Task              string            `json:"task"`
	StartTime         *time.Time        `json:"start_time"`
	EndTime           *time.Time        `json:"end_time"`
	Success           *bool             `json:"success"`
	ErrorCount        int               `json:"error_count"`
	InternalErrors    []InternalError   `json:"internal_errors"`
	Completed         bool              `json:"completed"`
	LastSavedTS       *time.Time        `json:"last_saved_ts"`
	TotalActions      int               `json:"total_actions"`
	ComponentSwitches []ComponentSwitch `json:"component_switches"`
	IdlePeriods       []IdlePeriod      `json:"idle_periods"`
	ComputedSignals   ComputedSignals   `json:"computed_signals"`
	Budget            Budget            `json:"budget"`
	Flights           CategoryMetrics   `json:"flights"`
	Hotels            CategoryMetrics   `json:"hotels"`
	Transportation    CategoryMetrics   `json:"transportation"`
	Meetings          MeetingMetrics    `json:"meetings"`
}

// #endregion task3-types

// #region task3-clone

func (d *Task3Data) TaskID() string { return Task3 }

// Clone returns a deep copy of the record.
func (d *Task3Data) Clone() *Task3Data {
	if d == nil {
		return nil
	}
	c := *d
	c.StartTime = cloneTime(d.StartTime)
	c.EndTime = cloneTime(d.EndTime)
	c.Success = cloneBool(d.Success)
	c.LastSavedTS = cloneTime(d.LastSavedTS)
	c.InternalErrors = cloneSlice(d.InternalErrors)
	c.ComponentSwitches = cloneSlice(d.ComponentSwitches)
	c.IdlePeriods = cloneSlice(d.IdlePeriods)
	c.Budget = d.Budget.clone()
	c.Flights = d.Flights.clone()
	c.Hotels = d.Hotels.clone()
	c.Transportation = d.Transportation.clone()
	c.Meetings = d.Meetings.clone()
	return &c
}

func (d *Task3Data) CloneSnapshot() Snapshot { return d.Clone() }

func (b Budget) clone() Budget {
	c := b
	if b.Updates != nil {
		c.Updates = make([]BudgetUpdate, len(b.Updates))
		for i, u := range b.Updates {
			u.NewTotal = cloneFloat(u.NewTotal)
			u.Price = cloneFloat(u.Price)
			c.Updates[i] = u
		}
	}
	return c
}

func (m CategoryMetrics) clone() CategoryMetrics {
	c := m
	c.HoverEvents = cloneSlice(m.HoverEvents)
	if m.Selections != nil {
		c.Selections = make([]Selection, len(m.Selections))
		for i, s := range m.Selections {
			s.FollowsRules = cloneBool(s.FollowsRules)
			s.Within5km = cloneBool(s.Within5km)
			c.Selections[i] = s
		}
	}
	return c
}

func (m MeetingMetrics) clone() MeetingMetrics {
	c := m
	if m.DragAttempts != nil {
		c.DragAttempts = make([]DragSequence, len(m.DragAttempts))
		for i, seq := range m.DragAttempts {
			seq.PlacementDurationMs = cloneInt(seq.PlacementDurationMs)
			if seq.Attempts != nil {
				attempts := make([]DragAttempt, len(seq.Attempts))
				for j, a := range seq.Attempts {
					a.Valid = cloneBool(a.Valid)
					attempts[j] = a
				}
				seq.Attempts = attempts
			}
			c.DragAttempts[i] = seq
		}
	}
	return c
}

// #endregion task3-clone
