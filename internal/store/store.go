package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// ErrNotFound is returned when a key or id has no row.
var ErrNotFound = errors.New("not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS task_snapshots (
	key        TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL,
	data_json  TEXT NOT NULL,
	saved_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feature_vectors (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	schema_version TEXT NOT NULL,
	source         TEXT,
	vector         BLOB NOT NULL,
	emitted_at     TEXT NOT NULL,
	interval_ms    INTEGER
);

CREATE TABLE IF NOT EXISTS prediction_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	load_class         TEXT NOT NULL,
	probabilities_json TEXT NOT NULL,
	shap_json          TEXT,
	explanation        TEXT,
	model_version      TEXT,
	received_at        INTEGER NOT NULL,
	created_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS aggregates (
	aggregate_id   TEXT PRIMARY KEY,
	participant_id TEXT,
	payload_json   TEXT NOT NULL,
	created_at     TEXT NOT NULL,
	submitted_at   TEXT
);
`

// #endregion schema

// #region store-struct
// Store persists task snapshots, emitted vectors and aggregates in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	s, err := Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Open runs migrations on an already opened database.
func Open(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// #endregion constructor

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #region snapshots
// SaveSnapshot upserts a task snapshot under key.
func (s *Store) SaveSnapshot(ctx context.Context, key string, data snapshot.Snapshot) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_snapshots (key, task_id, data_json, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET task_id = excluded.task_id, data_json = excluded.data_json, saved_at = excluded.saved_at`,
		key, data.TaskID(), string(body), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot reads the snapshot stored under key.
func (s *Store) LoadSnapshot(ctx context.Context, key string) (snapshot.Snapshot, error) {
	var taskID, body string
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, data_json FROM task_snapshots WHERE key = ?`, key,
	).Scan(&taskID, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return snapshot.Decode(taskID, []byte(body))
}

// ListSnapshots returns every stored snapshot, newest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, task_id, length(data_json), saved_at FROM task_snapshots ORDER BY saved_at DESC, key`,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		var savedStr string
		if err := rows.Scan(&rec.Key, &rec.TaskID, &rec.Bytes, &savedStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.SavedAt, _ = time.Parse(time.RFC3339Nano, savedStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion snapshots

// #region vectors
// RecordVector appends an emitted vector and returns its row id.
func (s *Store) RecordVector(ctx context.Context, rec VectorRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_vectors (schema_version, source, vector, emitted_at, interval_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.SchemaVersion, nullIfEmpty(rec.Source), encodeVector(rec.Features),
		rec.EmittedAt.UTC().Format(time.RFC3339Nano), rec.IntervalMs,
	)
	if err != nil {
		return 0, fmt.Errorf("insert vector: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("vector id: %w", err)
	}
	return id, nil
}

// ListVectors returns up to limit vectors, newest first.
func (s *Store) ListVectors(ctx context.Context, limit int) ([]VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schema_version, source, vector, emitted_at, interval_ms
		 FROM feature_vectors ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var source sql.NullString
		var blob []byte
		var emittedStr string
		var interval sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.SchemaVersion, &source, &blob, &emittedStr, &interval); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.Source = source.String
		rec.Features = decodeVector(blob)
		rec.EmittedAt, _ = time.Parse(time.RFC3339Nano, emittedStr)
		rec.IntervalMs = interval.Int64
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestVector returns the most recently recorded vector.
func (s *Store) LatestVector(ctx context.Context) (VectorRecord, error) {
	recs, err := s.ListVectors(ctx, 1)
	if err != nil {
		return VectorRecord{}, err
	}
	if len(recs) == 0 {
		return VectorRecord{}, fmt.Errorf("latest vector: %w", ErrNotFound)
	}
	return recs[0], nil
}

// #endregion vectors

// #region aggregates
// SaveAggregate inserts an aggregate payload. Saving the same id twice
// keeps the first payload.
func (s *Store) SaveAggregate(ctx context.Context, rec AggregateRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO aggregates (aggregate_id, participant_id, payload_json, created_at)
		 VALUES (?, ?, ?, ?) ON CONFLICT(aggregate_id) DO NOTHING`,
		rec.AggregateID, nullIfEmpty(rec.ParticipantID), rec.PayloadJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save aggregate: %w", err)
	}
	return nil
}

// MarkSubmitted stamps the aggregate as uploaded.
func (s *Store) MarkSubmitted(ctx context.Context, aggregateID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE aggregates SET submitted_at = ? WHERE aggregate_id = ?`,
		at.UTC().Format(time.RFC3339Nano), aggregateID,
	)
	if err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark submitted %s: %w", aggregateID, ErrNotFound)
	}
	return nil
}

// GetAggregate reads one aggregate.
func (s *Store) GetAggregate(ctx context.Context, aggregateID string) (AggregateRecord, error) {
	var rec AggregateRecord
	var participant, submitted sql.NullString
	var createdStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate_id, participant_id, payload_json, created_at, submitted_at
		 FROM aggregates WHERE aggregate_id = ?`, aggregateID,
	).Scan(&rec.AggregateID, &participant, &rec.PayloadJSON, &createdStr, &submitted)
	if errors.Is(err, sql.ErrNoRows) {
		return AggregateRecord{}, fmt.Errorf("get aggregate %s: %w", aggregateID, ErrNotFound)
	}
	if err != nil {
		return AggregateRecord{}, fmt.Errorf("get aggregate %s: %w", aggregateID, err)
	}
	rec.ParticipantID = participant.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	if submitted.Valid {
		t, err := time.Parse(time.RFC3339Nano, submitted.String)
		if err == nil {
			rec.SubmittedAt = &t
		}
	}
	return rec, nil
}

// #endregion aggregates

// #region vector-encoding
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

// #endregion vector-encoding

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
