package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/collector"
	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// ErrUnknownEvent is returned for a task or type no collector handles.
var ErrUnknownEvent = errors.New("unknown event")

const maxLine = 1 << 20

// #region session

// Session owns one collector per task.
type Session struct {
	Task1 *collector.Task1
	Task2 *collector.Task2
	Task3 *collector.Task3

	logger *zap.Logger
	clock  *eventClock

	mu   sync.Mutex
	seen map[string]bool
}

// eventClock reports the timestamp of the event being applied, or the wall
// clock when the event carries none.
type eventClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *eventClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t.IsZero() {
		return time.Now()
	}
	return c.t
}

func (c *eventClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// NewSession creates the three collectors with the same options. Collectors
// read time from the applied events unless opts carry their own clock.
func NewSession(logger *zap.Logger, opts ...collector.Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := &eventClock{}
	opts = append([]collector.Option{collector.WithLogger(logger), collector.WithClock(clock.Now)}, opts...)
	return &Session{
		Task1:  collector.NewTask1(opts...),
		Task2:  collector.NewTask2(opts...),
		Task3:  collector.NewTask3(opts...),
		logger: logger,
		clock:  clock,
		seen:   make(map[string]bool),
	}
}

// Apply dispatches ev to its collector.
func (s *Session) Apply(ctx context.Context, ev Event) error {
	if !ev.TS.IsZero() {
		s.clock.set(ev.TS)
	}
	var ok bool
	var err error
	switch ev.Task {
	case snapshot.Task1:
		ok, err = s.applyTask1(ctx, ev)
	case snapshot.Task2:
		ok, err = s.applyTask2(ctx, ev)
	case snapshot.Task3:
		ok, err = s.applyTask3(ctx, ev)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownEvent, ev.Task, ev.Type)
	}
	s.mu.Lock()
	s.seen[ev.Task] = true
	s.mu.Unlock()
	return err
}

// Publish sends the current snapshot of every task that has received an
// event. Collectors throttle their own publishes, so this closes the gap
// after a burst.
func (s *Session) Publish(p collector.Publisher) {
	s.mu.Lock()
	seen := map[string]bool{}
	for k, v := range s.seen {
		seen[k] = v
	}
	s.mu.Unlock()

	if seen[snapshot.Task1] {
		p.Publish(snapshot.Task1, s.Task1.Snapshot())
	}
	if seen[snapshot.Task2] {
		p.Publish(snapshot.Task2, s.Task2.Snapshot())
	}
	if seen[snapshot.Task3] {
		p.Publish(snapshot.Task3, s.Task3.Snapshot())
	}
}

// Stats counts what Run did.
type Stats struct {
	Applied  int
	Skipped  int
	Failures int
}

// Run applies every line of r. Malformed lines and unknown events are
// logged and skipped; persistence failures are counted. It stops early
// only when ctx ends or r fails.
func (s *Session) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return st, err
		}
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("malformed event skipped", zap.Int("line", line), zap.Error(err))
			st.Skipped++
			continue
		}
		err := s.Apply(ctx, ev)
		switch {
		case errors.Is(err, ErrUnknownEvent):
			s.logger.Warn("unknown event skipped", zap.Int("line", line), zap.Error(err))
			st.Skipped++
		case err != nil:
			s.logger.Warn("event failed", zap.Int("line", line), zap.Error(err))
			st.Failures++
		default:
			st.Applied++
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read events: %w", err)
	}
	return st, nil
}

// #endregion session

// #region dispatch

func (s *Session) applyTask1(ctx context.Context, ev Event) (bool, error) {
	c := s.Task1
	switch ev.Type {
	case "start":
		c.MarkStart()
	case "end":
		c.MarkEnd(ev.success())
	case "save":
		return true, c.Save(ctx)
	case "error":
		c.RecordError()
	case "help":
		c.RecordHelp()
	case "focus":
		c.Focus(ev.Field)
	case "blur":
		c.Blur(ev.Field)
	case "change":
		c.Change(ev.Field, ev.Value)
	case "key_down":
		c.KeyDown(ev.Field, ev.Key)
	case "paste":
		c.Paste(ev.Target)
	case "input":
		c.RecordInput(snapshot.InputEvent{Type: ev.Input, Target: ev.Target, X: ev.X, Y: ev.Y, Key: ev.Key})
	default:
		return false, nil
	}
	return true, nil
}

func (s *Session) applyTask2(ctx context.Context, ev Event) (bool, error) {
	c := s.Task2
	switch ev.Type {
	case "start":
		c.MarkStart()
	case "end":
		c.MarkEnd()
	case "decision":
		c.MarkDecisionTime()
	case "save":
		return true, c.Save(ctx, ev.success())
	case "filter":
		c.LogFilterUse(ev.FilterType, ev.Action, ev.Before, ev.After)
	case "filter_reset":
		c.LogFilterReset()
	case "filter_error":
		c.LogFilterError()
	case "hover_start":
		c.HoverStart(ev.ProductID)
	case "hover_end":
		c.HoverEnd(ev.ProductID)
	case "click":
		c.ClickPrecision(ev.Target, ev.point(), snapshot.Point{X: ev.CenterX, Y: ev.CenterY})
	case "mouse_move":
		c.MouseMove(ev.point())
	default:
		return false, nil
	}
	return true, nil
}

func (s *Session) applyTask3(ctx context.Context, ev Event) (bool, error) {
	c := s.Task3
	switch ev.Type {
	case "start":
		c.MarkStart()
	case "end":
		c.MarkEnd(ev.success())
	case "save":
		return true, c.Save(ctx)
	case "finalize":
		return true, c.FinalizeAndSave(ctx, ev.success())
	case "error":
		c.IncrementError()
	case "tab":
		c.ComponentSwitch(ev.Tab)
	case "activity":
		c.Activity()
	case "tick":
		c.Tick()
	case "entropy_start":
		c.StartMouseEntropy(ev.Area)
	case "entropy_stop":
		c.StopMouseEntropy(ev.Area)
	case "mouse_move":
		c.MouseSample(ev.point())
	case "hover_start":
		c.HoverStart(ev.Category, ev.ID, ev.Name)
	case "hover_end":
		c.HoverEnd(ev.Category, ev.ID, ev.Name)
	case "select_flight":
		c.SelectFlight(ev.flight(), ev.Direction)
	case "select_hotel":
		c.SelectHotel(ev.hotel())
	case "select_transport":
		c.SelectTransport(ev.transport())
	case "budget":
		c.PushBudgetUpdate(ev.Cause, ev.budget())
	case "drag_start":
		c.MeetingDragStart(ev.MeetingID)
	case "drop":
		c.MeetingDropAttempt(ev.MeetingID, ev.Day, ev.Hour, ev.Valid, ev.Reason)
	default:
		return false, nil
	}
	return true, nil
}

// #endregion dispatch
