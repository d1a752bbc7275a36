package logging

import "time"

// #region prediction-entry
// PredictionEntry is a single row in the prediction_log table.
type PredictionEntry struct {
	LoadClass         string
	ProbabilitiesJSON string
	ShapJSON          string
	Explanation       string
	ModelVersion      string
	ReceivedAt        int64
	CreatedAt         time.Time
}

// #endregion prediction-entry
