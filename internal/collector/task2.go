package collector

import (
	"context"
	"math"
	"time"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// Task2Key is the storage key of the product task's record.
const Task2Key = "task_2_data"

// RapidHoverWindow is the largest gap between hovers on different products
// that still counts as a rapid switch.
const RapidHoverWindow = 500 * time.Millisecond

// #region task2

type pathPoint struct {
	snapshot.Point
	at time.Time
}

// Task2 records the product-filtering task.
type Task2 struct {
	base
	data *snapshot.Task2Data

	seenFilter    map[string]bool
	firstFilterAt time.Time
	lastFilterAt  time.Time

	hoverStart   map[string]time.Time
	hovered      map[string]struct{}
	lastHover    string
	lastHoverAt  time.Time
	prevHover    string
	prevHoverGap time.Duration

	path []pathPoint
}

// NewTask2 creates a product collector and publishes its empty record.
func NewTask2(opts ...Option) *Task2 {
	c := &Task2{
		data:       &snapshot.Task2Data{},
		seenFilter: make(map[string]bool),
		hoverStart: make(map[string]time.Time),
		hovered:    make(map[string]struct{}),
	}
	c.setup(opts,
		func() snapshot.Snapshot { return c.data.Clone() },
		func(e snapshot.InternalError) { c.data.InternalErrors = boundedAppend(c.data.InternalErrors, e) })
	c.run("init", func() publishMode { return publishNow })
	return c
}

// Snapshot returns a deep copy of the record.
func (c *Task2) Snapshot() *snapshot.Task2Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Clone()
}

// #endregion task2

// #region task2-lifecycle

// MarkStart stamps the start time once.
func (c *Task2) MarkStart() {
	c.run("markStart", func() publishMode {
		if c.data.Timestamps.Start == nil {
			c.data.Timestamps.Start = ptr(c.now())
		}
		return publishNow
	})
}

// MarkEnd stamps the end time once and derives the total duration.
func (c *Task2) MarkEnd() {
	c.run("markEnd", func() publishMode {
		c.markEndLocked()
		return publishNow
	})
}

func (c *Task2) markEndLocked() {
	if c.data.Timestamps.End != nil {
		return
	}
	end := c.now()
	c.data.Timestamps.End = ptr(end)
	if start := c.data.Timestamps.Start; start != nil {
		c.data.SummaryMetrics.TotalTimeMs = msBetween(*start, end)
	}
}

// MarkDecisionTime derives the time from the last filter change to the end
// of the task and the number of distinct products compared.
func (c *Task2) MarkDecisionTime() {
	c.run("markDecisionTime", func() publishMode {
		c.markDecisionLocked()
		return publishThrottled
	})
}

func (c *Task2) markDecisionLocked() {
	if !c.lastFilterAt.IsZero() && c.data.Timestamps.End != nil {
		c.data.DecisionMaking.DecisionTimeMs = ptr(msBetween(c.lastFilterAt, *c.data.Timestamps.End))
	}
	c.data.DecisionMaking.ComparisonCount = len(c.hovered)
}

// Save closes the task, computes mouse entropy, records the outcome and
// persists the record under Task2Key.
func (c *Task2) Save(ctx context.Context, success bool) error {
	c.run("save", func() publishMode {
		c.markEndLocked()
		c.markDecisionLocked()
		c.data.MouseAnalytics.MouseEntropy = ptr(pathEntropy(c.path))
		c.data.SummaryMetrics.Success = success
		return publishNow
	})
	return c.save(ctx, Task2Key)
}

// #endregion task2-lifecycle

// #region task2-filters

// LogFilterUse records a filter change. The first use of a filter type
// extends the filter sequence; the very first use fixes time-to-first-filter.
func (c *Task2) LogFilterUse(filterType, action, before, after string) {
	c.run("logFilterUse", func() publishMode {
		now := c.now()
		fi := &c.data.FilterInteractions
		fi.FilterUses = boundedAppend(fi.FilterUses, snapshot.FilterUse{
			FilterType: filterType, Action: action,
			ValueBefore: before, ValueAfter: after, Timestamp: now,
		})
		if !c.seenFilter[filterType] {
			c.seenFilter[filterType] = true
			fi.FilterSequence = append(fi.FilterSequence, filterType)
			if c.firstFilterAt.IsZero() {
				c.firstFilterAt = now
				if start := c.data.Timestamps.Start; start != nil {
					c.data.DecisionMaking.TimeToFirstFilter = ptr(msBetween(*start, now))
				}
			}
		}
		c.lastFilterAt = now
		return publishThrottled
	})
}

// LogFilterReset counts a reset of all filters.
func (c *Task2) LogFilterReset() {
	c.run("logFilterReset", func() publishMode {
		c.data.FilterInteractions.FilterResets++
		return publishNow
	})
}

// LogFilterError counts an invalid filter input.
func (c *Task2) LogFilterError() {
	c.run("logFilterError", func() publishMode {
		c.data.SummaryMetrics.ErrorCount++
		return publishNow
	})
}

// #endregion task2-filters

// #region task2-hover

// HoverStart begins a product hover. Moving to a different product within
// RapidHoverWindow counts as a rapid switch; returning to the product
// hovered two steps ago with both gaps inside the window counts as one
// oscillation.
func (c *Task2) HoverStart(productID string) {
	c.run("hoverStart", func() publishMode {
		now := c.now()
		c.hoverStart[productID] = now
		pe := &c.data.ProductExploration
		if c.lastHover != "" && c.lastHover != productID {
			gap := now.Sub(c.lastHoverAt)
			if gap < RapidHoverWindow {
				pe.RapidHoverSwitches++
				if c.prevHover == productID && c.prevHoverGap < RapidHoverWindow {
					pe.HoverOscillations++
				}
			}
			pe.HoverSwitches = boundedAppend(pe.HoverSwitches, snapshot.HoverSwitch{
				From: c.lastHover, To: productID, TimeMs: gap.Milliseconds(),
			})
			c.prevHover = c.lastHover
			c.prevHoverGap = gap
		}
		c.lastHover = productID
		c.lastHoverAt = now
		c.hovered[productID] = struct{}{}
		return publishThrottled
	})
}

// HoverEnd closes a product hover and records its duration.
func (c *Task2) HoverEnd(productID string) {
	c.run("hoverEnd", func() publishMode {
		start, ok := c.hoverStart[productID]
		if !ok {
			return publishNone
		}
		delete(c.hoverStart, productID)
		pe := &c.data.ProductExploration
		pe.ProductsViewed = boundedAppend(pe.ProductsViewed, snapshot.ProductView{
			ProductID: productID, HoverDurationMs: msBetween(start, c.now()),
		})
		return publishThrottled
	})
}

// #endregion task2-hover

// #region task2-mouse

// ClickPrecision records the Euclidean distance between a click and the
// target's center.
func (c *Task2) ClickPrecision(target string, click, center snapshot.Point) {
	c.run("clickPrecision", func() publishMode {
		ma := &c.data.MouseAnalytics
		ma.ClickPrecision = boundedAppend(ma.ClickPrecision, snapshot.ClickPrecision{
			Target: target, ClickPos: click, Center: center,
			Distance: math.Hypot(click.X-center.X, click.Y-center.Y),
		})
		return publishThrottled
	})
}

// MouseMove samples the pointer path used for entropy.
func (c *Task2) MouseMove(p snapshot.Point) {
	c.run("mouseMove", func() publishMode {
		if !c.allowSample() {
			return publishNone
		}
		c.path = boundedAppend(c.path, pathPoint{Point: p, at: c.now()})
		return publishThrottled
	})
}

// #endregion task2-mouse
