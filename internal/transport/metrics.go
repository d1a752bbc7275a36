package transport

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "github.com/dyra-12/cogniviz/internal/transport"

// #region counters

type counters struct {
	sent       metric.Int64Counter
	dropped    metric.Int64Counter
	reconnects metric.Int64Counter
}

// newCounters registers the transport instruments on m, falling back to
// the global meter and then to no-op instruments.
func newCounters(m metric.Meter, logger *zap.Logger) counters {
	if m == nil {
		m = otel.Meter(meterName)
	}
	c, err := buildCounters(m)
	if err != nil {
		logger.Warn("transport metrics disabled", zap.Error(err))
		c, _ = buildCounters(noop.NewMeterProvider().Meter(meterName))
	}
	return c
}

func buildCounters(m metric.Meter) (counters, error) {
	var c counters
	var err error
	c.sent, err = m.Int64Counter("cogniviz.transport.packets.sent",
		metric.WithDescription("Metrics packets written to the inference channel"),
		metric.WithUnit("{packet}"),
	)
	if err != nil {
		return c, err
	}
	c.dropped, err = m.Int64Counter("cogniviz.transport.packets.dropped",
		metric.WithDescription("Metrics packets evicted from the outbound buffer"),
		metric.WithUnit("{packet}"),
	)
	if err != nil {
		return c, err
	}
	c.reconnects, err = m.Int64Counter("cogniviz.transport.reconnects",
		metric.WithDescription("Reconnect attempts scheduled"),
		metric.WithUnit("{attempt}"),
	)
	return c, err
}

func (c counters) send()      { c.sent.Add(context.Background(), 1) }
func (c counters) drop(n int) { c.dropped.Add(context.Background(), int64(n)) }
func (c counters) reconnect() { c.reconnects.Add(context.Background(), 1) }

// #endregion counters
