package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock" // v1.5.2
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(insertRunSQL))
	insertStmt, err := db.Prepare(insertRunSQL)
	assert.NoError(t, err)

	mock.ExpectPrepare(regexp.QuoteMeta(listRunsSQL))
	listStmt, err := db.Prepare(listRunsSQL)
	assert.NoError(t, err)

	return &Recorder{db: db, insertStmt: insertStmt, listStmt: listStmt, logger: zap.NewNop()}, mock
}

func TestRecordRun_writesSuccessfulRun(t *testing.T) {
	r, mock := newTestRecorder(t)
	defer r.Close()

	mock.ExpectExec("INSERT INTO run_history").WillReturnResult(sqlmock.NewResult(1, 1))

	r.RecordRun(context.Background(), "sync", "chat-1", map[string]int{"inserted": 2}, nil)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun_neverPanicsOnExecFailure(t *testing.T) {
	r, mock := newTestRecorder(t)
	defer r.Close()

	mock.ExpectExec("INSERT INTO run_history").WillReturnError(errors.New("connection reset"))

	assert.NotPanics(t, func() {
		r.RecordRun(context.Background(), "sync", "chat-1", map[string]int{"inserted": 2}, errors.New("upstream failure"))
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns_returnsRowsNewestFirst(t *testing.T) {
	r, mock := newTestRecorder(t)
	defer r.Close()

	rows := sqlmock.NewRows([]string{"id", "kind", "subject_id", "summary", "error_message", "finished_at"}).
		AddRow("run-2", "sync", "chat-1", []byte(`{"inserted":1}`), nil, time.Now()).
		AddRow("run-1", "sync", "chat-1", []byte(`{"inserted":2}`), "boom", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM run_history").WillReturnRows(rows)

	records, err := r.ListRuns(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "run-2", records[0].ID)
	assert.Equal(t, "boom", records[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
