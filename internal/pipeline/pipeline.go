// Package pipeline connects the metrics bus to the aggregation worker and
// hands every emitted vector to a transport.
package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/bus"
	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/transport"
	"github.com/dyra-12/cogniviz/internal/worker"
)

// #region collaborators

// Source is the snapshot feed, normally a *bus.Bus.
type Source interface {
	Subscribe(l bus.Listener) (unsubscribe func())
}

// Transport is the subset of *transport.Transport the pipeline drives.
type Transport interface {
	Enqueue(p protocol.FeaturePayload)
	OnStateChange(l transport.StateListener) func()
	Close()
}

// Observer sees every vector forwarded to the transport.
type Observer func(worker.Features)

// #endregion collaborators

// #region pipeline

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInterval sets the worker's emission interval.
func WithInterval(d time.Duration) Option { return func(p *Pipeline) { p.interval = d } }

// WithWorkerOptions passes options through to worker.New.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(p *Pipeline) { p.workerOpts = append(p.workerOpts, opts...) }
}

// WithObserver registers an emission observer.
func WithObserver(o Observer) Option { return func(p *Pipeline) { p.observer = o } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// Pipeline owns a worker and a transport for the lifetime of a session.
type Pipeline struct {
	interval   time.Duration
	workerOpts []worker.Option
	observer   Observer
	logger     *zap.Logger

	worker    *worker.Worker
	tr        Transport
	unsubBus  func()
	unsubTr   func()
	forwarded chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state transport.State
}

// New starts the worker, subscribes it to src and begins forwarding its
// emissions to tr.
func New(src Source, tr Transport, opts ...Option) *Pipeline {
	p := &Pipeline{
		interval:  worker.DefaultInterval,
		logger:    zap.NewNop(),
		tr:        tr,
		forwarded: make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.worker = worker.New(append([]worker.Option{worker.WithLogger(p.logger)}, p.workerOpts...)...)
	p.unsubTr = tr.OnStateChange(p.setState)

	go p.forward()
	p.worker.Send(worker.Init{Interval: p.interval})
	p.unsubBus = src.Subscribe(func(u bus.Update) {
		p.worker.Send(worker.SetTaskData{TaskID: u.TaskID, Data: u.Data})
	})
	return p
}

// State returns the transport state as last observed.
func (p *Pipeline) State() transport.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s transport.State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// ForceCompute asks the worker for an immediate vector.
func (p *Pipeline) ForceCompute() { p.worker.Send(worker.ForceCompute{}) }

// Pause stops interval emissions.
func (p *Pipeline) Pause() { p.worker.Send(worker.Pause{}) }

// Resume restarts interval emissions.
func (p *Pipeline) Resume() { p.worker.Send(worker.Resume{}) }

// Close unsubscribes from the bus, terminates the worker and closes the
// transport. It is idempotent. A live transport's prediction handler may
// call it; a mock transport answers on the forwarding goroutine, so its
// handler must not.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		p.unsubBus()
		p.worker.Send(worker.Terminate{})
		<-p.worker.Done()
		<-p.forwarded
		p.tr.Close()
		p.unsubTr()
	})
}

// #endregion pipeline

// #region forward

func (p *Pipeline) forward() {
	defer close(p.forwarded)
	for out := range p.worker.Out() {
		p.handle(out)
	}
}

func (p *Pipeline) handle(out worker.Output) {
	switch o := out.(type) {
	case worker.Features:
		if len(o.Features) == 0 {
			return
		}
		if !features.CompatibleVersion(o.SchemaVersion) {
			p.logger.Warn("emission with incompatible schema dropped",
				zap.String("schema_version", o.SchemaVersion),
				zap.String("want", features.SchemaVersion))
			return
		}
		if p.observer != nil {
			p.observe(o)
		}
		p.tr.Enqueue(protocol.FeaturePayload{
			SchemaVersion: o.SchemaVersion,
			Features:      o.Features,
			Source:        o.Source,
			EmittedAt:     o.EmittedAt.UnixMilli(),
			IntervalMs:    o.IntervalMs,
		})
	case worker.Error:
		p.logger.Warn("feature computation failed", zap.String("error", o.Message))
	}
}

func (p *Pipeline) observe(o worker.Features) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("emission observer failed", zap.Any("panic", r))
		}
	}()
	p.observer(o)
}

// #endregion forward
