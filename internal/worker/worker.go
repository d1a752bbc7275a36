package worker

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// DefaultInterval is the emission period used until Init says otherwise.
const DefaultInterval = 2000 * time.Millisecond

const (
	inboxSize  = 64
	outboxSize = 16
)

// #region ticker

// Ticker is the subset of *time.Ticker the worker needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// RealTicker wraps time.NewTicker.
func RealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// #endregion ticker

// #region worker

// Option configures a Worker.
type Option func(*Worker)

// WithTicker injects the ticker factory.
func WithTicker(f TickerFactory) Option { return func(w *Worker) { w.newTicker = f } }

// WithClock overrides the EmittedAt source.
func WithClock(now func() time.Time) Option { return func(w *Worker) { w.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(w *Worker) { w.logger = l } }

// WithCompute replaces the reduction from snapshots to a vector.
func WithCompute(fn func(features.Snapshots) []float64) Option {
	return func(w *Worker) { w.computeFn = fn }
}

// Worker reduces the latest task snapshots into feature vectors on its own
// goroutine. It is reached only through Send and Out.
type Worker struct {
	inbox chan Message
	out   chan Output
	done  chan struct{}

	newTicker TickerFactory
	now       func() time.Time
	logger    *zap.Logger
	computeFn func(features.Snapshots) []float64

	// owned by the loop goroutine
	interval time.Duration
	ticker   Ticker
	latest   features.Snapshots
	lastEmit time.Time
}

// New starts a worker. The timer stays off until Init.
func New(opts ...Option) *Worker {
	w := &Worker{
		inbox:     make(chan Message, inboxSize),
		out:       make(chan Output, outboxSize),
		done:      make(chan struct{}),
		newTicker: RealTicker,
		now:       time.Now,
		logger:    zap.NewNop(),
		interval:  DefaultInterval,
	}
	for _, o := range opts {
		o(w)
	}
	if w.computeFn == nil {
		w.computeFn = features.NewEngine(w.logger).Compute
	}
	go w.loop()
	return w
}

// Send delivers msg to the worker. It returns false once the worker has
// terminated.
func (w *Worker) Send(msg Message) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.inbox <- msg:
		return true
	case <-w.done:
		return false
	}
}

// Out returns the outbox. It is closed when the worker ends.
func (w *Worker) Out() <-chan Output { return w.out }

// Done is closed when the worker ends.
func (w *Worker) Done() <-chan struct{} { return w.done }

// #endregion worker

// #region loop

func (w *Worker) loop() {
	defer close(w.done)
	defer close(w.out)
	defer w.stopTimer()

	for {
		var tick <-chan time.Time
		if w.ticker != nil {
			tick = w.ticker.C()
		}
		select {
		case msg := <-w.inbox:
			if !w.handle(msg) {
				return
			}
		case <-tick:
			w.computeAndEmit(SourceInterval)
		}
	}
}

// handle applies one inbox message. It returns false on Terminate.
func (w *Worker) handle(msg Message) bool {
	switch m := msg.(type) {
	case Init:
		if m.Interval > 0 {
			w.interval = m.Interval
		}
		w.startTimer()
	case SetTaskData:
		w.setTaskData(m)
	case ForceCompute:
		w.computeAndEmit(SourceForce)
	case Pause:
		w.stopTimer()
	case Resume:
		w.startTimer()
	case Terminate:
		return false
	default:
		w.logger.Warn("unknown worker message", zap.String("type", fmt.Sprintf("%T", msg)))
	}
	return true
}

func (w *Worker) setTaskData(m SetTaskData) {
	if m.Data == nil {
		return
	}
	switch d := m.Data.(type) {
	case *snapshot.Task1Data:
		w.latest.Task1 = d
	case *snapshot.Task2Data:
		w.latest.Task2 = d
	case *snapshot.Task3Data:
		w.latest.Task3 = d
	default:
		w.logger.Warn("unknown task data", zap.String("task", m.TaskID))
	}
}

func (w *Worker) startTimer() {
	w.stopTimer()
	w.ticker = w.newTicker(w.interval)
}

func (w *Worker) stopTimer() {
	if w.ticker != nil {
		w.ticker.Stop()
		w.ticker = nil
	}
}

// #endregion loop

// #region compute

func (w *Worker) computeAndEmit(source string) {
	vec, err := w.compute()
	if err != nil {
		w.emit(Error{Message: err.Error()})
		return
	}
	if !features.Validate(vec) {
		w.logger.Debug("invalid feature vector dropped", zap.Int("len", len(vec)))
		return
	}
	w.emit(Features{
		SchemaVersion: features.SchemaVersion,
		Features:      vec,
		Source:        source,
		EmittedAt:     w.nextEmitTime(),
		IntervalMs:    w.interval.Milliseconds(),
	})
}

func (w *Worker) compute() (vec []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compute features: %v", r)
		}
	}()
	return w.computeFn(w.latest), nil
}

// nextEmitTime returns a millisecond timestamp strictly after the previous one.
func (w *Worker) nextEmitTime() time.Time {
	t := w.now().Truncate(time.Millisecond)
	if !w.lastEmit.IsZero() && !t.After(w.lastEmit) {
		t = w.lastEmit.Add(time.Millisecond)
	}
	w.lastEmit = t
	return t
}

// emit never blocks the loop. A full outbox drops the output.
func (w *Worker) emit(o Output) {
	select {
	case w.out <- o:
	default:
		w.logger.Warn("worker outbox full, output dropped")
	}
}

// #endregion compute
