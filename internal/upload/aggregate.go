// Package upload assembles the study-completion aggregate and submits it
// exactly once per participant.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dyra-12/cogniviz/internal/protocol"
	"github.com/dyra-12/cogniviz/internal/snapshot"
	"github.com/dyra-12/cogniviz/internal/store"
)

// #region aggregate

// Aggregate is everything collected for one participant.
type Aggregate struct {
	AggregateID   string                   `json:"aggregate_id"`
	ParticipantID string                   `json:"participantId,omitempty"`
	Timestamp     time.Time                `json:"timestamp"`
	Task1         *snapshot.Task1Data      `json:"task_1_data,omitempty"`
	Task2         *snapshot.Task2Data      `json:"task_2_data,omitempty"`
	Task3         *snapshot.Task3Data      `json:"task_3_data,omitempty"`
	LastVector    *protocol.FeaturePayload `json:"last_vector,omitempty"`
	Predictions   []protocol.Prediction    `json:"predictions"`
}

// GuardKey identifies the participant for duplicate detection.
func (a Aggregate) GuardKey() string {
	if a.ParticipantID != "" {
		return a.ParticipantID
	}
	return a.AggregateID
}

// Source reads persisted snapshots and vectors, normally a *store.Store.
type Source interface {
	ListSnapshots(ctx context.Context) ([]store.SnapshotRecord, error)
	LoadSnapshot(ctx context.Context, key string) (snapshot.Snapshot, error)
	LatestVector(ctx context.Context) (store.VectorRecord, error)
}

// Assemble collects the latest snapshot of each task, the last emitted
// vector and the prediction history.
func Assemble(ctx context.Context, src Source, participantID string, history []protocol.Prediction, now time.Time) (Aggregate, error) {
	agg := Aggregate{
		AggregateID:   uuid.New().String(),
		ParticipantID: participantID,
		Timestamp:     now.UTC(),
		Predictions:   append([]protocol.Prediction{}, history...),
	}

	recs, err := src.ListSnapshots(ctx)
	if err != nil {
		return Aggregate{}, fmt.Errorf("assemble: %w", err)
	}
	// recs are newest first, so the first hit per task wins
	for _, rec := range recs {
		if taskSet(agg, rec.TaskID) {
			continue
		}
		snap, err := src.LoadSnapshot(ctx, rec.Key)
		if err != nil {
			return Aggregate{}, fmt.Errorf("assemble: %w", err)
		}
		switch d := snap.(type) {
		case *snapshot.Task1Data:
			agg.Task1 = d
		case *snapshot.Task2Data:
			agg.Task2 = d
		case *snapshot.Task3Data:
			agg.Task3 = d
		}
	}

	vec, err := src.LatestVector(ctx)
	switch {
	case err == nil:
		agg.LastVector = &protocol.FeaturePayload{
			SchemaVersion: vec.SchemaVersion,
			Features:      vec.Features,
			Source:        vec.Source,
			EmittedAt:     vec.EmittedAt.UnixMilli(),
			IntervalMs:    vec.IntervalMs,
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return Aggregate{}, fmt.Errorf("assemble: %w", err)
	}
	return agg, nil
}

func taskSet(a Aggregate, taskID string) bool {
	switch taskID {
	case snapshot.Task1:
		return a.Task1 != nil
	case snapshot.Task2:
		return a.Task2 != nil
	case snapshot.Task3:
		return a.Task3 != nil
	}
	return true
}

// #endregion aggregate
