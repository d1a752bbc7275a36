package store

import "time"

// #region snapshot-record
// SnapshotRecord describes one persisted task snapshot without its body.
type SnapshotRecord struct {
	Key     string
	TaskID  string
	Bytes   int
	SavedAt time.Time
}

// #endregion snapshot-record

// #region vector-record
// VectorRecord is one emitted feature vector.
type VectorRecord struct {
	ID            int64
	SchemaVersion string
	Source        string
	Features      []float64
	EmittedAt     time.Time
	IntervalMs    int64
}

// #endregion vector-record

// #region aggregate-record
// AggregateRecord is a study-completion payload and its upload status.
type AggregateRecord struct {
	AggregateID   string
	ParticipantID string
	PayloadJSON   string
	CreatedAt     time.Time
	SubmittedAt   *time.Time
}

// #endregion aggregate-record
