package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region interfaces

// Publisher receives snapshots. *bus.Bus satisfies it.
type Publisher interface {
	Publish(taskID string, data snapshot.Snapshot)
}

// Persister stores a snapshot under a task or session key.
type Persister interface {
	SaveSnapshot(ctx context.Context, key string, data snapshot.Snapshot) error
}

// #endregion interfaces

// #region config

const (
	// PublishInterval bounds publishes caused by continuous streams.
	PublishInterval = 250 * time.Millisecond
	// SampleInterval bounds pointer-move samples.
	SampleInterval = 100 * time.Millisecond

	maxEvents   = 5000
	evictEvents = 1000
)

// Option configures a collector.
type Option func(*options)

type options struct {
	now       func() time.Time
	publisher Publisher
	persister Persister
	logger    *zap.Logger
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPublisher sets the bus that receives snapshots.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithPersister sets the local store used by Save.
func WithPersister(p Persister) Option {
	return func(o *options) { o.persister = p }
}

// WithLogger sets the logger for recovered failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// #endregion config

// #region base

type publishMode int

const (
	publishNone publishMode = iota
	publishThrottled
	publishNow
)

// base holds what every collector shares: the lock, clock, throttles and
// the recover guard around each recording method.
type base struct {
	mu    sync.Mutex
	pubMu sync.Mutex

	now       func() time.Time
	publisher Publisher
	persister Persister
	logger    *zap.Logger

	publishLimit *rate.Limiter
	sampleLimit  *rate.Limiter

	current   func() snapshot.Snapshot
	appendErr func(snapshot.InternalError)
}

func (b *base) setup(opts []Option, current func() snapshot.Snapshot, appendErr func(snapshot.InternalError)) {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	b.now = o.now
	b.publisher = o.publisher
	b.persister = o.persister
	b.logger = o.logger
	b.publishLimit = rate.NewLimiter(rate.Every(PublishInterval), 1)
	b.sampleLimit = rate.NewLimiter(rate.Every(SampleInterval), 1)
	b.current = current
	b.appendErr = appendErr
}

// run executes fn under the collector lock. Panics become internal errors
// and force an immediate publish. Publishing happens after the lock is
// released but in mutation order.
func (b *base) run(op string, fn func() publishMode) {
	b.mu.Lock()
	mode := b.guard(op, fn)
	var snap snapshot.Snapshot
	if b.publisher != nil {
		switch mode {
		case publishNow:
			snap = b.current()
		case publishThrottled:
			if b.publishLimit.AllowN(b.now(), 1) {
				snap = b.current()
			}
		}
	}
	if snap == nil {
		b.mu.Unlock()
		return
	}
	b.pubMu.Lock()
	b.mu.Unlock()
	defer b.pubMu.Unlock()
	b.publisher.Publish(snap.TaskID(), snap)
}

func (b *base) guard(op string, fn func() publishMode) (mode publishMode) {
	defer func() {
		if r := recover(); r != nil {
			b.recordError(fmt.Sprintf("%s failed: %v", op, r))
			mode = publishNow
		}
	}()
	return fn()
}

// recordError must be called with mu held.
func (b *base) recordError(msg string) {
	b.appendErr(snapshot.InternalError{TS: b.now(), Message: msg})
	b.logger.Warn("collector internal error", zap.String("error", msg))
}

// allowSample reports whether a pointer-move sample at the current time
// passes the sampling throttle. Must be called with mu held.
func (b *base) allowSample() bool {
	return b.sampleLimit.AllowN(b.now(), 1)
}

// save persists the current snapshot. Failures are also kept on the record.
func (b *base) save(ctx context.Context, key string) error {
	b.mu.Lock()
	snap := b.current()
	b.mu.Unlock()
	if b.persister == nil {
		return nil
	}
	if err := b.persister.SaveSnapshot(ctx, key, snap); err != nil {
		b.mu.Lock()
		b.recordError(fmt.Sprintf("save failed: %v", err))
		b.mu.Unlock()
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// #endregion base

// #region helpers

// boundedAppend appends v and evicts the oldest entries once the list
// exceeds maxEvents.
func boundedAppend[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > maxEvents {
		s = append(s[:0:0], s[evictEvents:]...)
	}
	return s
}

func ptr[T any](v T) *T { return &v }

func msBetween(from, to time.Time) int64 {
	return to.Sub(from).Milliseconds()
}

// #endregion helpers
