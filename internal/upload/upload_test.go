package upload

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/snapshot"
	"github.com/dyra-12/cogniviz/internal/store"
)

// #region mock

// scriptEmulator mimics submitScript against in-memory maps.
type scriptEmulator struct {
	strings map[string]string
	hashes  map[string]map[string]string
	err     error
}

func newEmulator() *scriptEmulator {
	return &scriptEmulator{strings: map[string]string{}, hashes: map[string]map[string]string{}}
}

func (e *scriptEmulator) run(_ context.Context, keys []string, args ...any) (any, error) {
	if e.err != nil {
		return nil, e.err
	}
	if existing, ok := e.strings[keys[0]]; ok {
		return []interface{}{int64(0), existing}, nil
	}
	id := args[0].(string)
	e.strings[keys[0]] = id
	if e.hashes[keys[1]] == nil {
		e.hashes[keys[1]] = map[string]string{}
	}
	e.hashes[keys[1]][id] = args[1].(string)
	return []interface{}{int64(1), id}, nil
}

type fakeLedger struct {
	saved     []store.AggregateRecord
	submitted []string
	saveErr   error
}

func (l *fakeLedger) SaveAggregate(_ context.Context, rec store.AggregateRecord) error {
	if l.saveErr != nil {
		return l.saveErr
	}
	l.saved = append(l.saved, rec)
	return nil
}

func (l *fakeLedger) MarkSubmitted(_ context.Context, id string, _ time.Time) error {
	l.submitted = append(l.submitted, id)
	return nil
}

func tempStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "agg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// #endregion mock

// #region assemble-tests

func TestAssemble_CollectsLatestPerTask(t *testing.T) {
	ctx := context.Background()
	st := tempStore(t)
	require.NoError(t, st.SaveSnapshot(ctx, "task_1_data", &snapshot.Task1Data{SummaryMetrics: snapshot.Task1Summary{ErrorCount: 4}}))
	require.NoError(t, st.SaveSnapshot(ctx, "task3_metrics_s1", &snapshot.Task3Data{SessionID: "s1"}))
	_, err := st.RecordVector(ctx, store.VectorRecord{SchemaVersion: "v1", Source: "force", Features: []float64{1, 2}, EmittedAt: time.UnixMilli(5000)})
	require.NoError(t, err)

	history := []protocol.Prediction{{LoadClass: protocol.LoadLow}, {LoadClass: protocol.LoadHigh}}
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	agg, err := Assemble(ctx, st, "p-17", history, now)
	require.NoError(t, err)

	assert.NotEmpty(t, agg.AggregateID)
	assert.Equal(t, "p-17", agg.GuardKey())
	require.NotNil(t, agg.Task1)
	assert.Equal(t, 4, agg.Task1.SummaryMetrics.ErrorCount)
	assert.Nil(t, agg.Task2)
	require.NotNil(t, agg.Task3)
	assert.Equal(t, "s1", agg.Task3.SessionID)
	require.NotNil(t, agg.LastVector)
	assert.Equal(t, int64(5000), agg.LastVector.EmittedAt)
	assert.Len(t, agg.Predictions, 2)
	assert.Equal(t, now, agg.Timestamp)

	history[0].LoadClass = protocol.LoadMedium
	assert.Equal(t, protocol.LoadLow, agg.Predictions[0].LoadClass)
}

func TestAssemble_EmptyStore(t *testing.T) {
	agg, err := Assemble(context.Background(), tempStore(t), "", nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, agg.LastVector)
	assert.Equal(t, agg.AggregateID, agg.GuardKey())

	body, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"predictions":[]`)
}

// #endregion assemble-tests

// #region submit-tests

func TestRedisSubmitter_DuplicateGuard(t *testing.T) {
	em := newEmulator()
	sub := &RedisSubmitter{key: "cogniviz:aggregates", run: em.run}
	ctx := context.Background()

	first, err := sub.Submit(ctx, Aggregate{AggregateID: "a1", ParticipantID: "p-17"})
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "a1"}, first)

	second, err := sub.Submit(ctx, Aggregate{AggregateID: "a2", ParticipantID: "p-17"})
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "a1", Duplicate: true}, second)

	assert.Len(t, em.hashes["cogniviz:aggregates"], 1)
	assert.Equal(t, "a1", em.strings["cogniviz:aggregates:uploaded:p-17"])
}

func TestRedisSubmitter_Error(t *testing.T) {
	em := newEmulator()
	em.err = errors.New("connection refused")
	sub := &RedisSubmitter{key: "k", run: em.run}

	_, err := sub.Submit(context.Background(), Aggregate{AggregateID: "a1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis submit")
}

func TestRedisSubmitter_BadReply(t *testing.T) {
	sub := &RedisSubmitter{key: "k", run: func(context.Context, []string, ...any) (any, error) { return "OK", nil }}
	_, err := sub.Submit(context.Background(), Aggregate{AggregateID: "a1"})
	require.Error(t, err)
}

// TestRedisSubmitter_Integration requires a running Redis.
func TestRedisSubmitter_Integration(t *testing.T) {
	sub := NewRedisSubmitter("localhost:6379", "cogniviz:test:"+time.Now().Format("150405.000000"))
	defer sub.Close()
	ctx := context.Background()
	if err := sub.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	res, err := sub.Submit(ctx, Aggregate{AggregateID: "a1", ParticipantID: "p1"})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	res, err = sub.Submit(ctx, Aggregate{AggregateID: "a2", ParticipantID: "p1"})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "a1", res.ID)
}

// #endregion submit-tests

// #region finalize-tests

func TestFinalize_SavesSubmitsAndMarks(t *testing.T) {
	ledger := &fakeLedger{}
	sub := &RedisSubmitter{key: "k", run: newEmulator().run}
	agg := Aggregate{AggregateID: "a1", ParticipantID: "p1", Timestamp: time.Now()}

	res, err := Finalize(context.Background(), ledger, sub, agg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.Len(t, ledger.saved, 1)
	assert.Contains(t, ledger.saved[0].PayloadJSON, `"aggregate_id":"a1"`)
	assert.Equal(t, []string{"a1"}, ledger.submitted)

	again, err := Finalize(context.Background(), ledger, sub, Aggregate{AggregateID: "a2", ParticipantID: "p1"}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, []string{"a1"}, ledger.submitted)
}

func TestFinalize_LedgerFailureStopsSubmit(t *testing.T) {
	em := newEmulator()
	ledger := &fakeLedger{saveErr: errors.New("disk full")}
	sub := &RedisSubmitter{key: "k", run: em.run}

	_, err := Finalize(context.Background(), ledger, sub, Aggregate{AggregateID: "a1"}, zap.NewNop())
	require.Error(t, err)
	assert.Empty(t, em.strings)
}

// #endregion finalize-tests
