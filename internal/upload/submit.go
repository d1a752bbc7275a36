package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dyra-12/cogniviz/internal/store"
)

// #region submitter

// Result reports where an aggregate ended up.
type Result struct {
	ID        string
	Duplicate bool
}

// Submitter delivers an aggregate to remote storage. A second submission
// for the same participant returns the first ID with Duplicate set.
type Submitter interface {
	Submit(ctx context.Context, agg Aggregate) (Result, error)
}

// Ledger records aggregates locally, normally a *store.Store.
type Ledger interface {
	SaveAggregate(ctx context.Context, rec store.AggregateRecord) error
	MarkSubmitted(ctx context.Context, aggregateID string, at time.Time) error
}

// #endregion submitter

// #region finalize

// Finalize saves agg to the ledger, submits it and stamps it as uploaded.
func Finalize(ctx context.Context, ledger Ledger, sub Submitter, agg Aggregate, logger *zap.Logger) (Result, error) {
	body, err := json.Marshal(agg)
	if err != nil {
		return Result{}, fmt.Errorf("marshal aggregate: %w", err)
	}
	err = ledger.SaveAggregate(ctx, store.AggregateRecord{
		AggregateID:   agg.AggregateID,
		ParticipantID: agg.ParticipantID,
		PayloadJSON:   string(body),
		CreatedAt:     agg.Timestamp,
	})
	if err != nil {
		return Result{}, err
	}

	res, err := sub.Submit(ctx, agg)
	if err != nil {
		return Result{}, fmt.Errorf("submit aggregate %s: %w", agg.AggregateID, err)
	}
	if res.Duplicate {
		logger.Info("aggregate already uploaded",
			zap.String("participant", agg.GuardKey()),
			zap.String("id", res.ID))
		return res, nil
	}
	if err := ledger.MarkSubmitted(ctx, agg.AggregateID, time.Now()); err != nil {
		return res, err
	}
	logger.Info("aggregate uploaded", zap.String("id", res.ID))
	return res, nil
}

// #endregion finalize
