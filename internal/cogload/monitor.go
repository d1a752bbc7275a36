// Package cogload holds the latest cognitive load classification and a
// bounded history for UI consumers.
package cogload

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/transport"
)

// HistorySize bounds the retained predictions.
const HistorySize = 60

// Calibrating is the explanation shown before the first prediction.
const Calibrating = "Calibrating"

// #region collaborators

// Controls are the streaming controls of a running pipeline.
type Controls interface {
	State() transport.State
	ForceCompute()
	Pause()
	Resume()
}

// Recorder persists predictions as they arrive.
type Recorder interface {
	RecordPrediction(ctx context.Context, p protocol.Prediction) error
}

// PredictionSource is anything that delivers predictions to one handler.
type PredictionSource interface {
	OnPrediction(h transport.PredictionHandler)
}

// #endregion collaborators

// #region monitor

// Option configures a Monitor.
type Option func(*Monitor)

// WithControls attaches pipeline controls.
func WithControls(c Controls) Option { return func(m *Monitor) { m.controls = c } }

// WithRecorder persists each prediction.
func WithRecorder(r Recorder) Option { return func(m *Monitor) { m.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Monitor) { m.logger = l } }

// Monitor is safe for concurrent use.
type Monitor struct {
	controls Controls
	recorder Recorder
	logger   *zap.Logger

	mu        sync.Mutex
	latest    *protocol.Prediction
	history   []protocol.Prediction
	listeners map[int]func(protocol.Prediction)
	order     []int
	nextID    int
}

// New returns an empty monitor reporting Unknown.
func New(opts ...Option) *Monitor {
	m := &Monitor{logger: zap.NewNop(), listeners: make(map[int]func(protocol.Prediction))}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Attach registers the monitor as src's prediction handler.
func (m *Monitor) Attach(src PredictionSource) {
	src.OnPrediction(m.Handle)
}

// Handle records p as the latest prediction.
func (m *Monitor) Handle(p protocol.Prediction) {
	if p.ReceivedAt == 0 {
		p.ReceivedAt = time.Now().UnixMilli()
	}
	p.Shap = append([]protocol.Contribution(nil), p.Shap...)

	m.mu.Lock()
	m.latest = &p
	m.history = append(m.history, p)
	if over := len(m.history) - HistorySize; over > 0 {
		m.history = append([]protocol.Prediction(nil), m.history[over:]...)
	}
	ls := make([]func(protocol.Prediction), 0, len(m.order))
	for _, id := range m.order {
		ls = append(ls, m.listeners[id])
	}
	m.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.RecordPrediction(context.Background(), p); err != nil {
			m.logger.Warn("record prediction", zap.Error(err))
		}
	}
	for _, l := range ls {
		l(p)
	}
}

// Subscribe registers l for every new prediction. Subscribers are called
// in registration order.
func (m *Monitor) Subscribe(l func(protocol.Prediction)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.listeners[id]; !ok {
			return
		}
		delete(m.listeners, id)
		for i, v := range m.order {
			if v == id {
				m.order = append(m.order[:i:i], m.order[i+1:]...)
				break
			}
		}
	}
}

// Current returns the latest prediction, or an Unknown placeholder.
func (m *Monitor) Current() protocol.Prediction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return protocol.Prediction{LoadClass: protocol.LoadUnknown, Explanation: Calibrating}
	}
	p := *m.latest
	p.Shap = append([]protocol.Contribution(nil), p.Shap...)
	return p
}

// History returns retained predictions, oldest first.
func (m *Monitor) History() []protocol.Prediction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Prediction(nil), m.history...)
}

// TransportState reports the attached pipeline's connection state.
func (m *Monitor) TransportState() transport.State {
	if m.controls == nil {
		return transport.Idle
	}
	return m.controls.State()
}

// ForceCompute asks the pipeline for an immediate vector.
func (m *Monitor) ForceCompute() {
	if m.controls != nil {
		m.controls.ForceCompute()
	}
}

// PauseStreaming stops interval emissions.
func (m *Monitor) PauseStreaming() {
	if m.controls != nil {
		m.controls.Pause()
	}
}

// ResumeStreaming restarts interval emissions.
func (m *Monitor) ResumeStreaming() {
	if m.controls != nil {
		m.controls.Resume()
	}
}

// #endregion monitor

// #region describe

// Describe returns a one-line description of a load class.
func Describe(class string) string {
	switch class {
	case protocol.LoadHigh:
		return "High cognitive load detected."
	case protocol.LoadMedium:
		return "Moderate cognitive load."
	case protocol.LoadLow:
		return "Low cognitive load."
	}
	return "Unknown cognitive load state."
}

// #endregion describe
