// Package app wires the telemetry client from configuration: collectors,
// bus, worker pipeline, transport, load monitor and local store.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/bus"
	"github.com/dyra-12/cogniviz/internal/cogload"
	"github.com/dyra-12/cogniviz/internal/collector"
	"github.com/dyra-12/cogniviz/internal/config"
	"github.com/dyra-12/cogniviz/internal/ingest"
	"github.com/dyra-12/cogniviz/internal/logging"
	"github.com/dyra-12/cogniviz/internal/pipeline"
	"github.com/dyra-12/cogniviz/internal/store"
	"github.com/dyra-12/cogniviz/internal/transport"
	"github.com/dyra-12/cogniviz/internal/worker"
)

// #region app

// App is one running telemetry client.
type App struct {
	Store     *store.Store
	Bus       *bus.Bus
	Session   *ingest.Session
	Transport *transport.Transport
	Pipeline  *pipeline.Pipeline
	Monitor   *cogload.Monitor

	logger *zap.Logger
}

// Option adjusts the client before it starts.
type Option func(*options)

type options struct {
	transportOpts []transport.Option
	workerOpts    []worker.Option
}

// WithTransportOptions passes extra options to the transport, after the
// defaults.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) { o.transportOpts = append(o.transportOpts, opts...) }
}

// WithWorkerOptions passes extra options to the aggregation worker.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(o *options) { o.workerOpts = append(o.workerOpts, opts...) }
}

// New opens the store and starts the pipeline. In live mode the transport
// dials cfg.WSURL immediately.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &App{Store: st, logger: logger}
	a.Bus = bus.New(bus.WithLogger(logger))
	a.Session = ingest.NewSession(logger,
		collector.WithPublisher(a.Bus),
		collector.WithPersister(st),
	)

	trOpts := append([]transport.Option{
		transport.WithDialer(transport.NewWebsocketDialer()),
		transport.WithLogger(logger),
	}, o.transportOpts...)
	a.Transport = transport.New(cfg.Transport(), trOpts...)

	a.Pipeline = pipeline.New(a.Bus, a.Transport,
		pipeline.WithInterval(cfg.Interval()),
		pipeline.WithLogger(logger),
		pipeline.WithWorkerOptions(o.workerOpts...),
		pipeline.WithObserver(a.recordVector),
	)
	a.Monitor = cogload.New(
		cogload.WithControls(a.Pipeline),
		cogload.WithRecorder(logging.DBRecorder{DB: st.DB()}),
		cogload.WithLogger(logger),
	)
	a.Monitor.Attach(a.Transport)

	logger.Info("telemetry client started",
		zap.String("mode", cfg.CogLoadMode),
		zap.String("url", cfg.WSURL),
		zap.String("db", cfg.DBPath),
		zap.Duration("interval", cfg.Interval()))
	return a, nil
}

func (a *App) recordVector(f worker.Features) {
	_, err := a.Store.RecordVector(context.Background(), store.VectorRecord{
		SchemaVersion: f.SchemaVersion,
		Source:        f.Source,
		Features:      f.Features,
		EmittedAt:     f.EmittedAt,
		IntervalMs:    f.IntervalMs,
	})
	if err != nil {
		a.logger.Warn("record vector", zap.Error(err))
	}
}

// Ingest applies the events in r, republishes every touched task and then
// forces a final emission so the last state is computed.
func (a *App) Ingest(ctx context.Context, r io.Reader) (ingest.Stats, error) {
	st, err := a.Session.Run(ctx, r)
	a.Session.Publish(a.Bus)
	a.Pipeline.ForceCompute()
	return st, err
}

// Close drains the pipeline, closes the transport and then the store.
func (a *App) Close() error {
	a.Pipeline.Close()
	return a.Store.Close()
}

// #endregion app
