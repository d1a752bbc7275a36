package worker

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region mock

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

type tickerFactory struct {
	mu        sync.Mutex
	tickers   []*manualTicker
	intervals []time.Duration
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	f.intervals = append(f.intervals, d)
	return t
}

func (f *tickerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) get(i int) (*manualTicker, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[i], f.intervals[i]
}

func next(t *testing.T, w *Worker) Output {
	t.Helper()
	select {
	case o, ok := <-w.Out():
		require.True(t, ok, "outbox closed")
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no output from worker")
		return nil
	}
}

func nextFeatures(t *testing.T, w *Worker) Features {
	t.Helper()
	o := next(t, w)
	f, ok := o.(Features)
	require.True(t, ok, "expected Features, got %T", o)
	return f
}

func terminate(t *testing.T, w *Worker) {
	t.Helper()
	w.Send(Terminate{})
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

// #endregion mock

// #region tests

func TestForceCompute_ZeroVectorBeforeAnyTask(t *testing.T) {
	w := New()
	defer terminate(t, w)

	w.Send(ForceCompute{})
	f := nextFeatures(t, w)
	assert.Equal(t, SourceForce, f.Source)
	assert.Equal(t, features.SchemaVersion, f.SchemaVersion)
	assert.Equal(t, make([]float64, features.Len), f.Features)
	assert.Equal(t, DefaultInterval.Milliseconds(), f.IntervalMs)
}

func TestTaskDataChangesOnlyItsSlot(t *testing.T) {
	w := New()
	defer terminate(t, w)

	w.Send(ForceCompute{})
	before := nextFeatures(t, w)

	w.Send(SetTaskData{TaskID: snapshot.Task1, Data: &snapshot.Task1Data{
		SummaryMetrics: snapshot.Task1Summary{ErrorCount: 2},
	}})
	w.Send(ForceCompute{})
	after := nextFeatures(t, w)

	idx := features.Index("task1_error_count")
	assert.Equal(t, 2.0, after.Features[idx])
	for i := range after.Features {
		if i != idx {
			assert.Equal(t, before.Features[i], after.Features[i], "slot %d", i)
		}
	}
}

func TestInterval_TickEmits(t *testing.T) {
	tf := &tickerFactory{}
	w := New(WithTicker(tf.New))
	defer terminate(t, w)

	w.Send(Init{Interval: 500 * time.Millisecond})
	require.Eventually(t, func() bool { return tf.count() == 1 }, time.Second, 5*time.Millisecond)

	tk, d := tf.get(0)
	assert.Equal(t, 500*time.Millisecond, d)
	tk.ch <- time.Now()

	f := nextFeatures(t, w)
	assert.Equal(t, SourceInterval, f.Source)
	assert.Equal(t, int64(500), f.IntervalMs)
}

func TestPauseResume(t *testing.T) {
	tf := &tickerFactory{}
	w := New(WithTicker(tf.New))
	defer terminate(t, w)

	w.Send(Init{})
	w.Send(SetTaskData{TaskID: snapshot.Task3, Data: &snapshot.Task3Data{TotalActions: 7}})
	w.Send(Pause{})
	w.Send(Resume{})
	require.Eventually(t, func() bool { return tf.count() == 2 }, time.Second, 5*time.Millisecond)

	first, _ := tf.get(0)
	assert.True(t, first.stopped.Load())

	second, d := tf.get(1)
	assert.Equal(t, DefaultInterval, d)
	second.ch <- time.Now()
	f := nextFeatures(t, w)
	assert.Equal(t, 7.0, f.Features[features.Index("task3_total_actions")])
}

func TestEmittedAtStrictlyIncreases(t *testing.T) {
	frozen := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	w := New(WithClock(func() time.Time { return frozen }))
	defer terminate(t, w)

	var last time.Time
	for range 5 {
		w.Send(ForceCompute{})
		f := nextFeatures(t, w)
		assert.True(t, f.EmittedAt.After(last))
		last = f.EmittedAt
	}
}

func TestComputePanicReportedAsError(t *testing.T) {
	w := New(WithCompute(func(features.Snapshots) []float64 { panic("broken reducer") }))
	defer terminate(t, w)

	w.Send(ForceCompute{})
	o := next(t, w)
	e, ok := o.(Error)
	require.True(t, ok, "expected Error, got %T", o)
	assert.Contains(t, e.Message, "broken reducer")
}

func TestInvalidVectorDropped(t *testing.T) {
	var calls atomic.Int32
	w := New(WithCompute(func(features.Snapshots) []float64 {
		if calls.Add(1) == 1 {
			v := make([]float64, features.Len)
			v[0] = math.NaN()
			return v
		}
		v := make([]float64, features.Len)
		v[0] = 42
		return v
	}))
	defer terminate(t, w)

	w.Send(ForceCompute{})
	w.Send(ForceCompute{})
	f := nextFeatures(t, w)
	assert.Equal(t, 42.0, f.Features[0])
}

func TestTerminate(t *testing.T) {
	tf := &tickerFactory{}
	w := New(WithTicker(tf.New))
	w.Send(Init{})
	require.Eventually(t, func() bool { return tf.count() == 1 }, time.Second, 5*time.Millisecond)

	terminate(t, w)
	tk, _ := tf.get(0)
	assert.True(t, tk.stopped.Load())
	assert.False(t, w.Send(ForceCompute{}))

	_, open := <-w.Out()
	assert.False(t, open)
}

// #endregion tests
