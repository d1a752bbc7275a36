package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

var errDisk = errors.New("disk I/O error")

// mockStore returns a Store over sqlmock with the migration already
// expected and applied.
func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS task_snapshots")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	return s, mock
}

// #region mock-tests
func TestOpen_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(errDisk)

	if _, err := Open(db); !errors.Is(err, errDisk) {
		t.Fatalf("expected wrapped disk error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveSnapshot_ExecErrorWrapped(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_snapshots")).
		WithArgs("task_2_data", snapshot.Task2, sqlmock.AnyArg(), "2026-05-04T10:00:00Z").
		WillReturnError(errDisk)

	err := s.SaveSnapshot(context.Background(), "task_2_data", &snapshot.Task2Data{})
	if !errors.Is(err, errDisk) {
		t.Fatalf("expected wrapped disk error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkSubmitted_NoRowsIsNotFound(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE aggregates SET submitted_at")).
		WithArgs(sqlmock.AnyArg(), "agg-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkSubmitted(context.Background(), "agg-1", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListVectors_QueryError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM feature_vectors")).WillReturnError(errDisk)

	if _, err := s.ListVectors(context.Background(), 5); !errors.Is(err, errDisk) {
		t.Fatalf("expected wrapped disk error, got %v", err)
	}
	if _, err := s.LatestVector(context.Background()); err == nil {
		t.Fatal("expected error from LatestVector after failed query")
	}
}

// #endregion mock-tests
