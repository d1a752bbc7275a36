package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/loadmodel"
	"github.com/dyra-12/cogniviz/internal/protocol"
)

// #region state

// State is the connection state. Only the Transport changes it.
type State string

const (
	Idle         State = "idle"
	Connecting   State = "connecting"
	Online       State = "online"
	Offline      State = "offline"
	Reconnecting State = "reconnecting"
	Mock         State = "mock"
	Unsupported  State = "unsupported"
	Terminated   State = "terminated"
)

// #endregion state

// #region config

// DefaultURL is used when no endpoint is configured.
const DefaultURL = "ws://localhost:8000/ws/metrics"

// Config holds the transport's tuning knobs.
type Config struct {
	URL           string
	Mock          bool
	AutoConnect   bool
	MaxBufferSize int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Factor        float64
	PingInterval  time.Duration
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		URL:           DefaultURL,
		AutoConnect:   true,
		MaxBufferSize: 50,
		BaseDelay:     1500 * time.Millisecond,
		MaxDelay:      12 * time.Second,
		Factor:        1.6,
		PingInterval:  20 * time.Second,
	}
}

// Responder synthesizes a prediction in mock mode.
type Responder func(protocol.FeaturePayload) protocol.Prediction

// PredictionHandler receives predictions.
type PredictionHandler func(protocol.Prediction)

// StateListener observes state changes. Listeners must not call Close or
// Connect.
type StateListener func(State)

// Option configures a Transport.
type Option func(*Transport)

// WithDialer replaces the websocket dialer. A nil dialer makes the
// transport unsupported.
func WithDialer(d Dialer) Option { return func(t *Transport) { t.dialer = d } }

// WithScheduler replaces time.AfterFunc for reconnect and ping timers.
func WithScheduler(s Scheduler) Option { return func(t *Transport) { t.sched = s } }

// WithResponder replaces the mock responder.
func WithResponder(r Responder) Option { return func(t *Transport) { t.responder = r } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(t *Transport) { t.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(t *Transport) { t.logger = l } }

// WithMeter sets the meter used for transport counters.
func WithMeter(m metric.Meter) Option { return func(t *Transport) { t.meter = m } }

// #endregion config

// #region transport

// Stats is a point-in-time view of transport counters.
type Stats struct {
	Sent       int64
	Dropped    int64
	Reconnects int64
	Buffered   int
}

// Transport streams metrics packets to the inference endpoint and hands
// predictions to a single handler.
type Transport struct {
	cfg       Config
	dialer    Dialer
	sched     Scheduler
	responder Responder
	codec     *protocol.Codec
	now       func() time.Time
	logger    *zap.Logger
	meter     metric.Meter
	counters  counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	state          State
	queue          []protocol.MetricsPacket
	nextID         int64
	conn           Conn
	gen            uint64
	backoff        Backoff
	reconnectTimer Timer
	pingTimer      Timer
	handler        PredictionHandler
	listeners      map[int]StateListener
	listenerOrder  []int
	nextListener   int
	pending        []State
	stats          Stats

	// notifyMu keeps listener delivery in transition order.
	notifyMu sync.Mutex
}

// New creates a Transport. Unless cfg.Mock is set or the dialer is nil,
// it connects immediately when cfg.AutoConnect is true.
func New(cfg Config, opts ...Option) *Transport {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = def.MaxBufferSize
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Factor <= 1 {
		cfg.Factor = def.Factor
	}

	t := &Transport{
		cfg:       cfg,
		dialer:    NewWebsocketDialer(),
		sched:     realScheduler{},
		codec:     protocol.MustCodec(),
		now:       time.Now,
		logger:    zap.NewNop(),
		listeners: make(map[int]StateListener),
		backoff:   Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay, Factor: cfg.Factor},
	}
	for _, o := range opts {
		o(t)
	}
	if t.responder == nil {
		t.responder = defaultResponder(t.now)
	}
	t.counters = newCounters(t.meter, t.logger)
	t.ctx, t.cancel = context.WithCancel(context.Background())

	switch {
	case cfg.Mock:
		t.state = Mock
	case t.dialer == nil:
		t.state = Unsupported
		t.logger.Warn("no duplex channel available, live classification disabled")
	default:
		t.state = Idle
		if cfg.AutoConnect {
			t.Connect()
		}
	}
	return t
}

func defaultResponder(now func() time.Time) Responder {
	return func(p protocol.FeaturePayload) protocol.Prediction {
		return loadmodel.Predict(p.Features, now())
	}
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stats returns the transport counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Buffered = len(t.queue)
	return s
}

// Buffered returns a copy of the packets waiting to be sent, oldest first.
func (t *Transport) Buffered() []protocol.MetricsPacket {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.MetricsPacket, len(t.queue))
	copy(out, t.queue)
	return out
}

// #endregion transport

// #region observers

// OnPrediction registers the prediction handler. The last registration wins.
func (t *Transport) OnPrediction(h PredictionHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// OnStateChange registers l and immediately replays the current state to
// it. The returned function unregisters it. Listeners run while the
// transport orders deliveries and must not call back into it.
func (t *Transport) OnStateChange(l StateListener) func() {
	t.mu.Lock()
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = l
	t.listenerOrder = append(t.listenerOrder, id)
	cur := t.state
	t.notifyMu.Lock()
	t.mu.Unlock()
	t.safeNotify(l, cur)
	t.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.listeners, id)
			for i, v := range t.listenerOrder {
				if v == id {
					t.listenerOrder = append(t.listenerOrder[:i], t.listenerOrder[i+1:]...)
					break
				}
			}
		})
	}
}

// setStateLocked records a transition for delivery by unlockAndNotify.
func (t *Transport) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.logger.Debug("transport state", zap.String("from", string(t.state)), zap.String("to", string(s)))
	t.state = s
	t.pending = append(t.pending, s)
}

// unlockAndNotify releases mu and delivers pending transitions outside it.
func (t *Transport) unlockAndNotify() {
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return
	}
	states := t.pending
	t.pending = nil
	ls := make([]StateListener, 0, len(t.listenerOrder))
	for _, id := range t.listenerOrder {
		ls = append(ls, t.listeners[id])
	}
	t.notifyMu.Lock()
	t.mu.Unlock()
	defer t.notifyMu.Unlock()
	for _, s := range states {
		for _, l := range ls {
			t.safeNotify(l, s)
		}
	}
}

func (t *Transport) safeNotify(l StateListener, s State) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("state listener failed", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	l(s)
}

func (t *Transport) safeHandle(h PredictionHandler, p protocol.Prediction) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("prediction handler failed", zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	h(p)
}

// #endregion observers

// #region connect

// Connect opens the connection. It is a no-op unless the transport is
// idle, offline or waiting to reconnect.
func (t *Transport) Connect() {
	t.mu.Lock()
	switch t.state {
	case Idle, Offline, Reconnecting:
	default:
		t.mu.Unlock()
		return
	}
	stopTimer(&t.reconnectTimer)
	t.gen++
	gen := t.gen
	t.setStateLocked(Connecting)
	t.wg.Add(1)
	go t.dial(gen)
	t.unlockAndNotify()
}

func (t *Transport) dial(gen uint64) {
	defer t.wg.Done()
	conn, err := t.dialer.Dial(t.ctx, t.cfg.URL)

	t.mu.Lock()
	if t.state != Connecting || t.gen != gen {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		delay := t.backoff.Failed()
		t.logger.Info("connect failed",
			zap.String("url", t.cfg.URL),
			zap.Int("attempt", t.backoff.Failures()),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		t.setStateLocked(Offline)
		t.scheduleReconnectLocked(delay)
		t.unlockAndNotify()
		return
	}

	t.conn = conn
	t.backoff.Reset()
	t.setStateLocked(Online)
	t.logger.Info("connected", zap.String("url", t.cfg.URL))
	preds := make(chan protocol.Prediction)
	go t.dispatch(preds)
	t.wg.Add(1)
	go t.readLoop(conn, gen, preds)
	t.schedulePingLocked(gen)
	t.flushLocked()
	t.unlockAndNotify()
}

func (t *Transport) scheduleReconnectLocked(delay time.Duration) {
	t.setStateLocked(Reconnecting)
	t.stats.Reconnects++
	t.counters.reconnect()
	t.reconnectTimer = t.sched.AfterFunc(delay, t.Connect)
}

// dropLocked tears down the current connection after an unexpected close
// or a failed send and schedules a reconnect.
func (t *Transport) dropLocked(err error) {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	stopTimer(&t.pingTimer)
	t.logger.Info("connection lost", zap.Error(err))
	t.setStateLocked(Offline)
	t.scheduleReconnectLocked(t.backoff.Dropped())
}

func (t *Transport) readLoop(conn Conn, gen uint64, preds chan<- protocol.Prediction) {
	defer t.wg.Done()
	defer close(preds)
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.gen == gen && t.state == Online {
				t.dropLocked(err)
			}
			t.unlockAndNotify()
			return
		}
		p, ok := t.decodeInbound(data)
		if !ok {
			continue
		}
		select {
		case preds <- p:
		case <-t.ctx.Done():
			return
		}
	}
}

// dispatch runs the prediction handler off the read goroutine. Close does
// not wait for it, so a handler may close the transport.
func (t *Transport) dispatch(preds <-chan protocol.Prediction) {
	for p := range preds {
		t.mu.Lock()
		h, state := t.handler, t.state
		t.mu.Unlock()
		if h != nil && state != Terminated {
			t.safeHandle(h, p)
		}
	}
}

func (t *Transport) decodeInbound(data []byte) (protocol.Prediction, bool) {
	msg, err := t.codec.DecodeServer(data)
	if err != nil {
		t.logger.Warn("malformed inbound frame dropped", zap.Error(err))
		return protocol.Prediction{}, false
	}
	switch m := msg.(type) {
	case *protocol.PredictionMessage:
		return m.Payload, true
	case *protocol.ErrorMessage:
		t.logger.Warn("inference service reported error", zap.String("detail", m.Detail))
	}
	return protocol.Prediction{}, false
}

// #endregion connect

// #region ping

func (t *Transport) schedulePingLocked(gen uint64) {
	if t.cfg.PingInterval <= 0 {
		return
	}
	t.pingTimer = t.sched.AfterFunc(t.cfg.PingInterval, func() { t.ping(gen) })
}

func (t *Transport) ping(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Online || t.gen != gen || t.conn == nil {
		return
	}
	data, err := protocol.Encode(&protocol.Ping{At: t.now().UnixMilli()})
	if err == nil {
		err = t.conn.WriteMessage(data)
	}
	if err != nil {
		t.logger.Warn("ping failed", zap.Error(err))
	}
	t.schedulePingLocked(gen)
}

// #endregion ping

// #region enqueue

// Enqueue wraps payload in a metrics packet and sends it, buffering while
// the connection is down. In mock mode the responder answers directly and
// nothing is buffered.
func (t *Transport) Enqueue(payload protocol.FeaturePayload) {
	payload.Features = append([]float64(nil), payload.Features...)

	t.mu.Lock()
	switch t.state {
	case Terminated, Unsupported:
		state := t.state
		t.mu.Unlock()
		t.logger.Debug("enqueue ignored", zap.String("state", string(state)))
		return
	case Mock:
		t.nextID++
		responder, handler := t.responder, t.handler
		t.mu.Unlock()
		t.respond(responder, handler, payload)
		return
	}

	t.nextID++
	t.queue = append(t.queue, protocol.MetricsPacket{
		ID:              t.nextID,
		Type:            protocol.TypeMetrics,
		ProtocolVersion: protocol.ProtocolVersion,
		SentAt:          t.now().UnixMilli(),
		Features:        payload,
	})
	if over := len(t.queue) - t.cfg.MaxBufferSize; over > 0 {
		evicted := t.queue[:over]
		t.queue = append([]protocol.MetricsPacket(nil), t.queue[over:]...)
		t.stats.Dropped += int64(over)
		t.counters.drop(over)
		t.logger.Debug("outbound buffer full, oldest dropped", zap.Int64("id", evicted[0].ID))
	}
	t.flushLocked()
	t.unlockAndNotify()
}

// Flush sends buffered packets if the connection is online.
func (t *Transport) Flush() {
	t.mu.Lock()
	t.flushLocked()
	t.unlockAndNotify()
}

func (t *Transport) flushLocked() {
	for t.state == Online && t.conn != nil && len(t.queue) > 0 {
		data, err := protocol.Encode(&t.queue[0])
		if err != nil {
			t.logger.Error("encode packet", zap.Int64("id", t.queue[0].ID), zap.Error(err))
			t.queue = t.queue[1:]
			continue
		}
		if err := t.conn.WriteMessage(data); err != nil {
			t.dropLocked(fmt.Errorf("send packet %d: %w", t.queue[0].ID, err))
			return
		}
		t.queue = t.queue[1:]
		t.stats.Sent++
		t.counters.send()
	}
}

func (t *Transport) respond(r Responder, h PredictionHandler, p protocol.FeaturePayload) {
	pred, ok := func() (pred protocol.Prediction, ok bool) {
		defer func() {
			if rec := recover(); rec != nil {
				t.logger.Error("mock responder failed", zap.Error(fmt.Errorf("panic: %v", rec)))
				ok = false
			}
		}()
		return r(p), true
	}()
	if !ok {
		return
	}
	if pred.ReceivedAt == 0 {
		pred.ReceivedAt = t.now().UnixMilli()
	}
	t.mu.Lock()
	t.stats.Sent++
	t.mu.Unlock()
	if h != nil {
		t.safeHandle(h, pred)
	}
}

// #endregion enqueue

// #region close

// Close stops all timers, closes the connection and moves to Terminated.
// It is idempotent and waits for the dial and read goroutines to exit. A
// prediction handler may call it.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.state == Terminated {
		t.mu.Unlock()
		return
	}
	t.cancel()
	stopTimer(&t.reconnectTimer)
	stopTimer(&t.pingTimer)
	t.gen++
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.setStateLocked(Terminated)
	t.unlockAndNotify()
	t.wg.Wait()
}

func stopTimer(tm *Timer) {
	if *tm != nil {
		(*tm).Stop()
		*tm = nil
	}
}

// #endregion close
