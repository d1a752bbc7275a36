package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyra-12/cogniviz/internal/config"
	"github.com/dyra-12/cogniviz/internal/features"
	"github.com/dyra-12/cogniviz/internal/ingest"
	"github.com/dyra-12/cogniviz/internal/logging"
	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/transport"
	"github.com/dyra-12/cogniviz/internal/worker"
)

type stillTicker struct{ ch chan time.Time }

func (t stillTicker) C() <-chan time.Time { return t.ch }
func (stillTicker) Stop()                 {}

func noTicks(time.Duration) worker.Ticker { return stillTicker{ch: make(chan time.Time)} }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.CogLoadMode = config.ModeSimulation
	return cfg
}

const formSession = `{"task":"task1","type":"start","ts":"2026-03-01T10:00:00Z"}
{"task":"task1","type":"error","ts":"2026-03-01T10:00:01Z"}
{"task":"task1","type":"error","ts":"2026-03-01T10:00:02Z"}
{"task":"task1","type":"help","ts":"2026-03-01T10:00:03Z"}
{"task":"task1","type":"end","success":true,"ts":"2026-03-01T10:00:30Z"}
{"task":"task1","type":"save","ts":"2026-03-01T10:00:30Z"}
`

func TestIngest_MockModeEndToEnd(t *testing.T) {
	a, err := New(testConfig(), nil, WithWorkerOptions(worker.WithTicker(noTicks)))
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, transport.Mock, a.Transport.State())

	ctx := context.Background()
	st, err := a.Ingest(ctx, strings.NewReader(formSession))
	require.NoError(t, err)
	assert.Equal(t, ingest.Stats{Applied: 6}, st)

	// draining the pipeline delivers the forced emission and its prediction
	a.Pipeline.Close()

	vecs, err := a.Store.ListVectors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, worker.SourceForce, vecs[0].Source)
	assert.Equal(t, 2.0, vecs[0].Features[features.Index("task1_error_count")])
	assert.Equal(t, 1.0, vecs[0].Features[features.Index("task1_help_requests")])

	preds, err := logging.ListPredictions(ctx, a.Store.DB(), 10)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, protocol.LoadLow, preds[0].LoadClass)
	assert.Equal(t, preds[0].LoadClass, a.Monitor.Current().LoadClass)

	snaps, err := a.Store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "task1", snaps[0].TaskID)
}

func TestNew_LiveModeWithoutServerGoesOffline(t *testing.T) {
	cfg := testConfig()
	cfg.CogLoadMode = config.ModeLive
	cfg.WSURL = "ws://127.0.0.1:1/ws/metrics"

	a, err := New(cfg, nil, WithWorkerOptions(worker.WithTicker(noTicks)))
	require.NoError(t, err)
	defer a.Close()

	require.Eventually(t, func() bool {
		s := a.Monitor.TransportState()
		return s == transport.Offline || s == transport.Reconnecting
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNew_BadDBPath(t *testing.T) {
	cfg := testConfig()
	cfg.DBPath = t.TempDir() + "/missing/dir/db.sqlite"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
