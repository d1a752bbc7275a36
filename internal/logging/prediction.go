package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dyra-12/cogniviz/internal/protocol"
)

// #region log-prediction
// LogPrediction writes a received prediction to the prediction_log table.
func LogPrediction(db *sql.DB, entry PredictionEntry) error {
	return logPrediction(context.Background(), db, entry)
}

func logPrediction(ctx context.Context, db *sql.DB, entry PredictionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO prediction_log (load_class, probabilities_json, shap_json, explanation, model_version, received_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.LoadClass,
		entry.ProbabilitiesJSON,
		nullIfEmpty(entry.ShapJSON),
		nullIfEmpty(entry.Explanation),
		nullIfEmpty(entry.ModelVersion),
		entry.ReceivedAt,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log prediction: %w", err)
	}
	return nil
}

// #endregion log-prediction

// #region entry-from-prediction
// EntryFor flattens a prediction into a log row.
func EntryFor(p protocol.Prediction) (PredictionEntry, error) {
	probs, err := json.Marshal(p.Probabilities)
	if err != nil {
		return PredictionEntry{}, fmt.Errorf("marshal probabilities: %w", err)
	}
	entry := PredictionEntry{
		LoadClass:         p.LoadClass,
		ProbabilitiesJSON: string(probs),
		Explanation:       p.Explanation,
		ModelVersion:      p.ModelVersion,
		ReceivedAt:        p.ReceivedAt,
	}
	if len(p.Shap) > 0 {
		shap, err := json.Marshal(p.Shap)
		if err != nil {
			return PredictionEntry{}, fmt.Errorf("marshal shap: %w", err)
		}
		entry.ShapJSON = string(shap)
	}
	return entry, nil
}

// #endregion entry-from-prediction

// #region recorder
// DBRecorder logs every prediction it is handed into db.
type DBRecorder struct {
	DB *sql.DB
}

// RecordPrediction implements cogload.Recorder.
func (r DBRecorder) RecordPrediction(ctx context.Context, p protocol.Prediction) error {
	entry, err := EntryFor(p)
	if err != nil {
		return err
	}
	return logPrediction(ctx, r.DB, entry)
}

// #endregion recorder

// #region list-predictions
// ListPredictions returns the last limit logged predictions, oldest first.
// A limit <= 0 returns all of them.
func ListPredictions(ctx context.Context, db *sql.DB, limit int) ([]protocol.Prediction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT load_class, probabilities_json, shap_json, explanation, model_version, received_at
		 FROM (SELECT * FROM prediction_log ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []protocol.Prediction
	for rows.Next() {
		var (
			p                 protocol.Prediction
			probs             string
			shap, expl, model sql.NullString
		)
		if err := rows.Scan(&p.LoadClass, &probs, &shap, &expl, &model, &p.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if err := json.Unmarshal([]byte(probs), &p.Probabilities); err != nil {
			return nil, fmt.Errorf("unmarshal probabilities: %w", err)
		}
		if shap.Valid {
			if err := json.Unmarshal([]byte(shap.String), &p.Shap); err != nil {
				return nil, fmt.Errorf("unmarshal shap: %w", err)
			}
		}
		p.Explanation = expl.String
		p.ModelVersion = model.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return out, nil
}

// #endregion list-predictions

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
