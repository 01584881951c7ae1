// Package audit implements the Run Recorder: a best-effort, non-blocking
// Postgres sink for completed sync and hybrid-workflow runs
// (SPEC_FULL.md's ambient "run history" addition). Grounded on the
// teacher's internal/repository/message_repository.go — prepared
// statements over *sql.DB, errors.Wrap for context, prometheus
// counters/histograms per operation — adapted from message persistence
// (not applicable; the core owns no message data) to run-history
// persistence, a diagnostic concern the orchestrator itself owns.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	"github.com/golang-migrate/migrate/v4" // v4.16.2
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid" // v1.4.0
	_ "github.com/lib/pq" // v1.10.9
	"github.com/pkg/errors" // v0.9.1
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	runOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_run_records_total",
		Help: "Run history records written, by outcome.",
	}, []string{"kind", "outcome"})

	recordDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_record_duration_seconds",
		Help:    "Duration of a run-history write.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

const insertRunSQL = `
	INSERT INTO run_history (id, kind, subject_id, summary, error_message, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const listRunsSQL = `
	SELECT id, kind, subject_id, summary, error_message, finished_at
	FROM run_history
	ORDER BY finished_at DESC
	LIMIT $1`

const writeTimeout = 5 * time.Second

// Recorder is the Postgres-backed Run Recorder. It implements
// sync.RunRecorder.
type Recorder struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	listStmt   *sql.Stmt
	logger     *zap.Logger
}

// Record is one row of run history, as returned by ListRuns.
type Record struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	SubjectID    string          `json:"subject_id"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// Open connects to dsn, runs pending migrations, and prepares the
// recorder's statements. A nil *Recorder (returned alongside a non-nil
// error) must never be wired into the Sync & Workflow Engine — callers
// should fall back to a nil RunRecorder instead, per the audit
// subsystem's "never affects correctness" contract.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration, logger *zap.Logger) (*Recorder, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open audit database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run audit migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	insertStmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to prepare insertRun statement")
	}
	listStmt, err := db.PrepareContext(ctx, listRunsSQL)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to prepare listRuns statement")
	}

	return &Recorder{db: db, insertStmt: insertStmt, listStmt: listStmt, logger: logger}, nil
}

func runMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to build postgres migration driver")
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to open embedded migration source")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "failed to construct migrator")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to apply migrations")
	}
	logger.Info("audit schema migrated")
	return nil
}

// Close releases the recorder's database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// RecordRun persists one completed run. Best-effort: a failure here is
// logged and counted, never propagated (run history is a diagnostic
// aid, not part of any operation's correctness). The write runs on the
// caller's goroutine and is bounded by writeTimeout; the Sync & Workflow
// Engine calls RecordRun on a goroutine of its own.
func (r *Recorder) RecordRun(ctx context.Context, kind string, subjectID string, summary interface{}, runErr error) {
	timer := prometheus.NewTimer(recordDuration.WithLabelValues(kind))
	defer timer.ObserveDuration()

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		r.logger.Warn("failed to marshal run summary", zap.String("kind", kind), zap.Error(err))
		summaryJSON = []byte("null")
	}

	var errMessage sql.NullString
	if runErr != nil {
		errMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	now := time.Now()
	_, execErr := r.insertStmt.ExecContext(writeCtx, uuid.New().String(), kind, subjectID, summaryJSON, errMessage, now, now)
	if execErr != nil {
		runOps.WithLabelValues(kind, "error").Inc()
		r.logger.Warn("failed to record run", zap.String("kind", kind), zap.String("subject_id", subjectID), zap.Error(execErr))
		return
	}
	runOps.WithLabelValues(kind, "ok").Inc()
}

// ListRuns returns the most recent limit run-history records, newest
// first (SPEC_FULL.md's `/internal/runs` diagnostic endpoint).
func (r *Recorder) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.listStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run history")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var summary []byte
		var errMessage sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.SubjectID, &summary, &errMessage, &rec.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan run history row")
		}
		rec.Summary = summary
		if errMessage.Valid {
			rec.ErrorMessage = errMessage.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating run history rows")
	}
	return records, nil
}
