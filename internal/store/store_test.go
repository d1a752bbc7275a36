package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// #region snapshot-tests
func TestSaveAndLoadSnapshot(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	in := &snapshot.Task1Data{
		Timestamps:     snapshot.Timestamps{Start: &start},
		SummaryMetrics: snapshot.Task1Summary{ErrorCount: 2},
		FieldInteractions: []snapshot.FieldInteraction{
			{FieldName: "zipCode", BackspaceCount: 3},
		},
	}
	if err := s.SaveSnapshot(ctx, "task_1_data", in); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := s.LoadSnapshot(ctx, "task_1_data")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	t1, ok := got.(*snapshot.Task1Data)
	if !ok {
		t.Fatalf("expected *Task1Data, got %T", got)
	}
	if t1.SummaryMetrics.ErrorCount != 2 {
		t.Fatalf("expected error count 2, got %d", t1.SummaryMetrics.ErrorCount)
	}
	if !t1.Timestamps.Start.Equal(start) {
		t.Fatalf("expected start %v, got %v", start, t1.Timestamps.Start)
	}
	if t1.FieldInteractions[0].BackspaceCount != 3 {
		t.Fatalf("expected 3 backspaces, got %d", t1.FieldInteractions[0].BackspaceCount)
	}
}

func TestSaveSnapshot_Overwrites(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := &snapshot.Task3Data{SessionID: "abc", TotalActions: i}
		if err := s.SaveSnapshot(ctx, "task3_metrics_abc", d); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	list, err := s.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(list))
	}
	if list[0].TaskID != snapshot.Task3 {
		t.Fatalf("expected task3, got %s", list[0].TaskID)
	}

	got, err := s.LoadSnapshot(ctx, "task3_metrics_abc")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.(*snapshot.Task3Data).TotalActions != 3 {
		t.Fatalf("expected last write to win")
	}
}

func TestLoadSnapshot_NotFound(t *testing.T) {
	s := tempDB(t)
	_, err := s.LoadSnapshot(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// #endregion snapshot-tests

// #region vector-tests
func TestRecordAndListVectors(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		vec := make([]float64, 16)
		vec[0] = float64(i) + 0.25
		_, err := s.RecordVector(ctx, VectorRecord{
			SchemaVersion: "v1",
			Source:        "interval",
			Features:      vec,
			EmittedAt:     at.Add(time.Duration(i) * time.Second),
			IntervalMs:    2000,
		})
		if err != nil {
			t.Fatalf("RecordVector: %v", err)
		}
	}

	recs, err := s.ListVectors(ctx, 2)
	if err != nil {
		t.Fatalf("ListVectors: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(recs))
	}
	if recs[0].Features[0] != 2.25 {
		t.Fatalf("expected newest first, got %f", recs[0].Features[0])
	}
	if len(recs[0].Features) != 16 {
		t.Fatalf("expected 16 features, got %d", len(recs[0].Features))
	}

	latest, err := s.LatestVector(ctx)
	if err != nil {
		t.Fatalf("LatestVector: %v", err)
	}
	if !latest.EmittedAt.Equal(at.Add(2 * time.Second)) {
		t.Fatalf("unexpected emitted_at %v", latest.EmittedAt)
	}
}

func TestLatestVector_Empty(t *testing.T) {
	s := tempDB(t)
	if _, err := s.LatestVector(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVectorEncoding_RoundTrip(t *testing.T) {
	in := []float64{0, -1.5, math.MaxFloat64, math.SmallestNonzeroFloat64}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

// #endregion vector-tests

// #region aggregate-tests
func TestAggregate_SaveMarkGet(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	rec := AggregateRecord{AggregateID: "agg-1", ParticipantID: "p1", PayloadJSON: `{"a":1}`}
	if err := s.SaveAggregate(ctx, rec); err != nil {
		t.Fatalf("SaveAggregate: %v", err)
	}
	rec.PayloadJSON = `{"a":2}`
	if err := s.SaveAggregate(ctx, rec); err != nil {
		t.Fatalf("SaveAggregate twice: %v", err)
	}

	got, err := s.GetAggregate(ctx, "agg-1")
	if err != nil {
		t.Fatalf("GetAggregate: %v", err)
	}
	if got.PayloadJSON != `{"a":1}` {
		t.Fatalf("expected first payload kept, got %s", got.PayloadJSON)
	}
	if got.SubmittedAt != nil {
		t.Fatal("expected unsubmitted aggregate")
	}

	at := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)
	if err := s.MarkSubmitted(ctx, "agg-1", at); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	got, _ = s.GetAggregate(ctx, "agg-1")
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(at) {
		t.Fatalf("expected submitted_at %v, got %v", at, got.SubmittedAt)
	}
}

func TestMarkSubmitted_Unknown(t *testing.T) {
	s := tempDB(t)
	err := s.MarkSubmitted(context.Background(), "nope", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	if err := s.SaveSnapshot(context.Background(), "task_2_data", &snapshot.Task2Data{}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
}

// #endregion aggregate-tests
