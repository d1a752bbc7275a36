package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

const (
	// IdleThreshold is the inactivity span that opens an idle period.
	IdleThreshold = 3 * time.Second
	// RapidSelectionWindow and RapidSelectionCount define a burst of
	// selections within one category.
	RapidSelectionWindow = 5 * time.Second
	RapidSelectionCount  = 3

	selectionHistory = 10
)

// Task3 areas. The first three are also hover and selection categories.
const (
	AreaFlights        = "flights"
	AreaHotels         = "hotels"
	AreaTransportation = "transportation"
	AreaMeetings       = "meetings"
)

// Task3KeyPrefix prefixes the session id in the storage key.
const Task3KeyPrefix = "task3_metrics_"

// #region task3-inputs

// Flight is a selectable flight option.
type Flight struct {
	ID        string
	Airline   string
	Departure time.Time
	Arrival   time.Time
	Price     float64
}

// Hotel is a selectable hotel option.
type Hotel struct {
	ID         string
	Name       string
	Stars      int
	DistanceKm float64
	TotalPrice float64
}

// Transport is a selectable local transport option.
type Transport struct {
	ID    string
	Type  string
	Price float64
}

// BudgetDetail carries either an explicit new total or a price to add.
type BudgetDetail struct {
	ItemID   string
	NewTotal *float64
	Price    *float64
}

// #endregion task3-inputs

// #region task3

type hoverTimer struct {
	start time.Time
	name  string
}

// Task3 records the session-scoped trip planning task.
type Task3 struct {
	base
	data *snapshot.Task3Data

	hoverTimers map[string]hoverTimer

	samplingArea string
	sampling     bool
	samples      []snapshot.Point

	lastActivity time.Time
	idleStart    time.Time

	selections map[string][]time.Time
}

// NewTask3 creates a trip planning collector with a fresh session id.
func NewTask3(opts ...Option) *Task3 {
	c := &Task3{
		data: &snapshot.Task3Data{
			SessionID:       uuid.NewString(),
			Task:            snapshot.Task3,
			ComputedSignals: snapshot.ComputedSignals{MouseSamplingRateMs: int(SampleInterval.Milliseconds())},
		},
		hoverTimers: make(map[string]hoverTimer),
		selections:  make(map[string][]time.Time),
	}
	c.setup(opts,
		func() snapshot.Snapshot { return c.data.Clone() },
		func(e snapshot.InternalError) { c.data.InternalErrors = boundedAppend(c.data.InternalErrors, e) })
	c.lastActivity = c.now()
	return c
}

// SessionID returns the session identifier.
func (c *Task3) SessionID() string { return c.data.SessionID }

// Key returns the storage key for this session.
func (c *Task3) Key() string { return Task3KeyPrefix + c.data.SessionID }

// Snapshot returns a deep copy of the record.
func (c *Task3) Snapshot() *snapshot.Task3Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Clone()
}

// Save persists the record under Key.
func (c *Task3) Save(ctx context.Context) error {
	return c.save(ctx, c.Key())
}

func (c *Task3) touch() { c.data.LastSavedTS = ptr(c.now()) }

// #endregion task3

// #region task3-lifecycle

// MarkStart stamps the start time once and restarts the idle clock there.
func (c *Task3) MarkStart() {
	c.run("markStart", func() publishMode {
		if c.data.StartTime == nil {
			c.data.StartTime = ptr(c.now())
			c.lastActivity = *c.data.StartTime
			c.idleStart = time.Time{}
		}
		c.touch()
		return publishNow
	})
}

// MarkEnd stamps the end time once and records the outcome.
func (c *Task3) MarkEnd(success bool) {
	c.run("markEnd", func() publishMode {
		c.markEndLocked(success)
		return publishNow
	})
}

func (c *Task3) markEndLocked(success bool) {
	if c.data.EndTime == nil {
		c.data.EndTime = ptr(c.now())
	}
	c.data.Success = ptr(success)
	c.touch()
}

// FinalizeAndSave ends the task, settles the running total from the last
// budget update and persists the record.
func (c *Task3) FinalizeAndSave(ctx context.Context, success bool) error {
	c.run("finalize", func() publishMode {
		c.markEndLocked(success)
		if n := len(c.data.Budget.Updates); n > 0 {
			if last := c.data.Budget.Updates[n-1].NewTotal; last != nil {
				c.data.Budget.CurrentTotal = *last
			}
		}
		c.data.Completed = success
		return publishNow
	})
	return c.Save(ctx)
}

// IncrementError counts a task error.
func (c *Task3) IncrementError() {
	c.run("incrementError", func() publishMode {
		c.data.ErrorCount++
		return publishNow
	})
}

// ComponentSwitch records a tab change.
func (c *Task3) ComponentSwitch(tab string) {
	c.run("componentSwitch", func() publishMode {
		c.data.ComponentSwitches = boundedAppend(c.data.ComponentSwitches, snapshot.ComponentSwitch{Tab: tab, TS: c.now()})
		return publishThrottled
	})
}

// #endregion task3-lifecycle

// #region task3-idle

// Activity marks pointer or keyboard activity, closing an open idle period.
func (c *Task3) Activity() {
	c.run("activity", func() publishMode {
		if c.activityLocked() {
			return publishNow
		}
		return publishNone
	})
}

// activityLocked closes the open idle period, or records the whole gap as
// one when no Tick opened it.
func (c *Task3) activityLocked() (closedIdle bool) {
	now := c.now()
	if c.idleStart.IsZero() && now.Sub(c.lastActivity) > IdleThreshold {
		c.idleStart = c.lastActivity.Add(IdleThreshold)
	}
	if !c.idleStart.IsZero() {
		c.data.IdlePeriods = boundedAppend(c.data.IdlePeriods, snapshot.IdlePeriod{
			Start: c.idleStart, End: now, DurationMs: msBetween(c.idleStart, now),
		})
		c.idleStart = time.Time{}
		closedIdle = true
	}
	c.lastActivity = now
	return closedIdle
}

// Tick opens an idle period once activity has been absent for longer than
// IdleThreshold. The period starts IdleThreshold after the last activity.
func (c *Task3) Tick() {
	c.run("tick", func() publishMode {
		if c.idleStart.IsZero() && c.now().Sub(c.lastActivity) > IdleThreshold {
			c.idleStart = c.lastActivity.Add(IdleThreshold)
		}
		return publishNone
	})
}

// #endregion task3-idle

// #region task3-mouse

// StartMouseEntropy begins sampling pointer positions for area, discarding
// any previous samples.
func (c *Task3) StartMouseEntropy(area string) {
	c.run("startMouseEntropy", func() publishMode {
		c.startSamplingLocked(area)
		return publishNone
	})
}

// StopMouseEntropy ends sampling and stores the grid entropy on area.
// It returns 0 when no sampling was active.
func (c *Task3) StopMouseEntropy(area string) float64 {
	var entropy float64
	c.run("stopMouseEntropy", func() publishMode {
		e, ok := c.stopSamplingLocked()
		if !ok {
			return publishNone
		}
		entropy = e
		c.setAreaEntropy(area, e)
		return publishThrottled
	})
	return entropy
}

// MouseSample records a pointer position, sampled at most once per
// SampleInterval. It also counts as activity.
func (c *Task3) MouseSample(p snapshot.Point) {
	c.run("mouseSample", func() publishMode {
		closed := c.activityLocked()
		if c.sampling && c.allowSample() {
			c.samples = boundedAppend(c.samples, p)
		}
		if closed {
			return publishNow
		}
		return publishNone
	})
}

func (c *Task3) startSamplingLocked(area string) {
	c.samplingArea = area
	c.sampling = true
	c.samples = nil
}

func (c *Task3) stopSamplingLocked() (float64, bool) {
	if !c.sampling {
		return 0, false
	}
	e := gridEntropy(c.samples)
	c.sampling = false
	c.samples = nil
	c.samplingArea = ""
	return e, true
}

func (c *Task3) setAreaEntropy(area string, e float64) {
	switch area {
	case AreaFlights:
		c.data.Flights.MouseEntropy = e
	case AreaHotels:
		c.data.Hotels.MouseEntropy = e
	case AreaTransportation:
		c.data.Transportation.MouseEntropy = e
	case AreaMeetings:
		c.data.Meetings.MouseEntropy = e
	}
}

func (c *Task3) category(name string) (*snapshot.CategoryMetrics, error) {
	switch name {
	case AreaFlights:
		return &c.data.Flights, nil
	case AreaHotels:
		return &c.data.Hotels, nil
	case AreaTransportation:
		return &c.data.Transportation, nil
	}
	return nil, fmt.Errorf("unknown category %q", name)
}

// #endregion task3-mouse

// #region task3-hover

// HoverStart times a hover over an item and starts entropy sampling for
// its category.
func (c *Task3) HoverStart(category, id, name string) {
	c.run("hoverStart", func() publishMode {
		idle := c.activityLocked()
		c.hoverTimers[category+"_"+id] = hoverTimer{start: c.now(), name: name}
		c.startSamplingLocked(category)
		if idle {
			return publishNow
		}
		return publishNone
	})
}

// HoverEnd records the hover and stores the category's entropy.
func (c *Task3) HoverEnd(category, id, name string) {
	c.run("hoverEnd", func() publishMode {
		cat, err := c.category(category)
		if err != nil {
			c.recordError("hoverEnd failed: " + err.Error())
			return publishNow
		}
		key := category + "_" + id
		if t, ok := c.hoverTimers[key]; ok {
			delete(c.hoverTimers, key)
			end := c.now()
			if name == "" {
				name = t.name
			}
			cat.HoverEvents = boundedAppend(cat.HoverEvents, snapshot.HoverEvent{
				ID: id, Name: name, StartTS: t.start, EndTS: end, DurationMs: msBetween(t.start, end),
			})
		}
		if e, ok := c.stopSamplingLocked(); ok {
			cat.MouseEntropy = e
		}
		return publishThrottled
	})
}

// #endregion task3-hover

// #region task3-selection

// SelectFlight records a flight choice. Outbound flights follow the travel
// rules when they arrive before 15:00; return flights when they depart at
// or after 12:00 and arrive after departing.
func (c *Task3) SelectFlight(f Flight, direction string) {
	c.run("flightSelect", func() publishMode {
		var follows bool
		if direction == "outbound" {
			follows = f.Arrival.Hour() < 15
		} else {
			follows = f.Departure.Hour() >= 12 && f.Arrival.After(f.Departure)
		}
		c.data.Flights.Selections = boundedAppend(c.data.Flights.Selections, snapshot.Selection{
			TS: c.now(), ID: f.ID, Name: f.Airline + " " + f.ID, Price: f.Price,
			Direction: direction, DepTime: f.Departure, ArrTime: f.Arrival,
			FollowsRules: ptr(follows),
		})
		return c.selectedLocked(AreaFlights, CauseFlight, f.ID, f.Price)
	})
}

// SelectHotel records a hotel choice.
func (c *Task3) SelectHotel(h Hotel) {
	c.run("hotelSelect", func() publishMode {
		c.data.Hotels.Selections = boundedAppend(c.data.Hotels.Selections, snapshot.Selection{
			TS: c.now(), ID: h.ID, Name: h.Name, Price: h.TotalPrice,
			Stars: h.Stars, DistanceKm: h.DistanceKm, Within5km: ptr(h.DistanceKm <= 5),
		})
		return c.selectedLocked(AreaHotels, CauseHotel, h.ID, h.TotalPrice)
	})
}

// SelectTransport records a local transport choice.
func (c *Task3) SelectTransport(t Transport) {
	c.run("transportSelect", func() publishMode {
		c.data.Transportation.Selections = boundedAppend(c.data.Transportation.Selections, snapshot.Selection{
			TS: c.now(), ID: t.ID, Mode: t.Type, Price: t.Price,
		})
		return c.selectedLocked(AreaTransportation, CauseTransport, t.ID, t.Price)
	})
}

func (c *Task3) selectedLocked(category, cause, id string, price float64) publishMode {
	idle := c.activityLocked()
	c.registerRapidSelection(category)
	c.data.TotalActions++
	if c.budgetLocked(cause, BudgetDetail{ItemID: id, Price: ptr(price)}) || idle {
		return publishNow
	}
	return publishThrottled
}

// registerRapidSelection counts a burst once RapidSelectionCount selections
// of one category fall within RapidSelectionWindow, then starts over.
func (c *Task3) registerRapidSelection(category string) {
	now := c.now()
	buf := append(c.selections[category], now)
	if len(buf) > selectionHistory {
		buf = buf[1:]
	}
	recent := 0
	for _, t := range buf {
		if now.Sub(t) <= RapidSelectionWindow {
			recent++
		}
	}
	if recent >= RapidSelectionCount {
		c.data.ComputedSignals.RapidSelectionChanges++
		buf = nil
	}
	c.selections[category] = buf
}

// #endregion task3-selection

// #region task3-budget

// PushBudgetUpdate records a change of the running total. An explicit
// NewTotal wins; otherwise Price is added to the current total. Updates
// with neither are recorded without touching the state machine.
func (c *Task3) PushBudgetUpdate(cause string, detail BudgetDetail) {
	c.run("budgetUpdate", func() publishMode {
		if c.budgetLocked(cause, detail) {
			return publishNow
		}
		return publishThrottled
	})
}

func (c *Task3) budgetLocked(cause string, detail BudgetDetail) (transitioned bool) {
	now := c.now()
	var total *float64
	switch {
	case detail.NewTotal != nil:
		total = ptr(*detail.NewTotal)
	case detail.Price != nil:
		total = ptr(c.data.Budget.CurrentTotal + *detail.Price)
	}
	var price *float64
	if detail.Price != nil {
		price = ptr(*detail.Price)
	}
	c.data.Budget.Updates = boundedAppend(c.data.Budget.Updates, snapshot.BudgetUpdate{
		TS: now, NewTotal: total, Cause: cause, ItemID: detail.ItemID, Price: price,
	})
	if total != nil {
		transitioned = applyBudget(&c.data.Budget, cause, *total)
	}
	c.data.LastSavedTS = ptr(now)
	return transitioned
}

// #endregion task3-budget

// #region task3-meetings

func slotName(day string, hour int) string {
	return fmt.Sprintf("%s %d:00", day, hour)
}

func (c *Task3) openSequence(meetingID string) *snapshot.DragSequence {
	seqs := c.data.Meetings.DragAttempts
	for i := range seqs {
		if seqs[i].MeetingID == meetingID && !seqs[i].Placed {
			return &seqs[i]
		}
	}
	return nil
}

// MeetingDragStart opens or extends the drag sequence of a meeting.
func (c *Task3) MeetingDragStart(meetingID string) {
	c.run("meetingDragStart", func() publishMode {
		idle := c.activityLocked()
		now := c.now()
		if seq := c.openSequence(meetingID); seq != nil {
			seq.Attempts = append(seq.Attempts, snapshot.DragAttempt{StartTS: now})
		} else {
			c.data.Meetings.DragAttempts = append(c.data.Meetings.DragAttempts, snapshot.DragSequence{
				MeetingID: meetingID,
				Attempts:  []snapshot.DragAttempt{{StartTS: now}},
			})
		}
		c.data.TotalActions++
		if idle {
			return publishNow
		}
		return publishThrottled
	})
}

// MeetingDropAttempt records a drop on a slot. The first valid drop closes
// the sequence with the time since the first drag.
func (c *Task3) MeetingDropAttempt(meetingID, day string, hour int, valid bool, reason string) {
	c.run("meetingDropAttempt", func() publishMode {
		idle := c.activityLocked()
		now := c.now()
		slot := slotName(day, hour)
		c.data.TotalActions++
		seq := c.openSequence(meetingID)
		if seq == nil {
			s := snapshot.DragSequence{
				MeetingID: meetingID,
				Attempts: []snapshot.DragAttempt{{
					StartTS: now, AttemptedSlot: slot, Valid: ptr(valid), Reason: reason,
				}},
				Placed: valid,
			}
			if valid {
				s.PlacementDurationMs = ptr(int64(0))
				s.FinalSlot = slot
			}
			c.data.Meetings.DragAttempts = append(c.data.Meetings.DragAttempts, s)
			if valid || idle {
				return publishNow
			}
			return publishThrottled
		}
		first := now
		if len(seq.Attempts) > 0 {
			first = seq.Attempts[0].StartTS
		}
		elapsed := msBetween(first, now)
		seq.Attempts = append(seq.Attempts, snapshot.DragAttempt{
			StartTS: first, AttemptedSlot: slot, Valid: ptr(valid), Reason: reason, DurationMs: elapsed,
		})
		if !valid {
			if idle {
				return publishNow
			}
			return publishThrottled
		}
		seq.Placed = true
		seq.PlacementDurationMs = ptr(elapsed)
		seq.FinalSlot = slot
		return publishNow
	})
}

// #endregion task3-meetings
