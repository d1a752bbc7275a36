package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/protocol"
)

// #region mock

var (
	errRefused = errors.New("connection refused")
	errClosed  = errors.New("use of closed connection")
	errBroken  = errors.New("broken pipe")
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool { return !t.stopped.Swap(true) }

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// delays returns the delay of every timer scheduled with a delay other
// than skip.
func (s *fakeScheduler) delays(skip time.Duration) []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if t.d != skip {
			out = append(out, t.d)
		}
	}
	return out
}

// latest returns the most recent pending timer with delay d.
func (s *fakeScheduler) latest(d time.Duration) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.timers) - 1; i >= 0; i-- {
		if s.timers[i].d == d && !s.timers[i].stopped.Load() {
			return s.timers[i]
		}
	}
	return nil
}

// fireLast runs the most recently scheduled timer if it is still pending.
func (s *fakeScheduler) fireLast() {
	s.mu.Lock()
	t := s.timers[len(s.timers)-1]
	s.mu.Unlock()
	fire(t)
}

func fire(t *fakeTimer) {
	if t != nil && !t.stopped.Swap(true) {
		t.f()
	}
}

type dialResult struct {
	conn *fakeConn
	err  error
}

type fakeDialer struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.results) == 0 {
		return nil, errRefused
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.inbound:
		return b, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// frames decodes everything written so far.
func (c *fakeConn) frames() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.written))
	for _, w := range c.written {
		var m map[string]any
		if err := json.Unmarshal(w, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// packetIDs returns the ids of written metrics packets in send order.
func (c *fakeConn) packetIDs() []int64 {
	var ids []int64
	for _, f := range c.frames() {
		if f["type"] == protocol.TypeMetrics {
			ids = append(ids, int64(f["id"].(float64)))
		}
	}
	return ids
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func payload(v float64) protocol.FeaturePayload {
	vec := make([]float64, features.Len)
	vec[0] = v
	return protocol.FeaturePayload{SchemaVersion: features.SchemaVersion, Features: vec, Source: "interval"}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AutoConnect = false
	return cfg
}

func fixedClock() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }

// #endregion mock
