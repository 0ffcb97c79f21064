package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/job-aggregator/internal/ledger"
)

func newMock(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(db, dialect, nil), mock
}

func TestRebind(t *testing.T) {
	pg := &Queries{dialect: Postgres}
	lite := &Queries{dialect: SQLite}

	query := "SELECT id FROM job_postings WHERE source = ? AND source_item_id = ?"
	assert.Equal(t, "SELECT id FROM job_postings WHERE source = $1 AND source_item_id = $2", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.True(t, IsUniqueViolation(errors.Wrap(&pq.Error{Code: "23505"}, "insert")))
	assert.False(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestInTxRollbackFailureIsReported(t *testing.T) {
	s, mock := newMock(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	err := s.InTx(context.Background(), func(*Tx) error { return errors.New("work failed") })
	require.EqualError(t, err, "work failed")
	assert.Contains(t, fmt.Sprintf("%+v", err), "connection lost")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxCommitFailure(t *testing.T) {
	s, mock := newMock(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err := s.InTx(context.Background(), func(*Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishRunRequiresStartedRow(t *testing.T) {
	s, mock := newMock(t, Postgres)

	mock.ExpectExec(`UPDATE ingestion_runs SET status = \$1, finished_at = \$2, meta = \$3 WHERE id = \$4 AND status = \$5`).
		WithArgs("finished", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(3), "started").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.FinishIngestionRun(context.Background(), 3, ledger.RunFinished, time.Now(), ledger.Document{})
	require.Error(t, err)
	assert.Equal(t, ledger.KindStorage, ledger.KindOf(err, ledger.KindInternal))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobMapsStorageFailures(t *testing.T) {
	s, mock := newMock(t, SQLite)

	mock.ExpectQuery(`INSERT INTO job_postings`).WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	mock.ExpectQuery(`INSERT INTO job_postings`).WillReturnError(errors.New("disk I/O error"))

	_, err := s.CreateJob(context.Background(), &ledger.JobPosting{Source: "s", SourceItemID: "1"})
	assert.Equal(t, ledger.KindConflict, ledger.KindOf(err, ledger.KindInternal))

	_, err = s.CreateJob(context.Background(), &ledger.JobPosting{Source: "s", SourceItemID: "2"})
	assert.Equal(t, ledger.KindStorage, ledger.KindOf(err, ledger.KindInternal))

	require.NoError(t, mock.ExpectationsWereMet())
}
