// Package history records one row per harness run in Postgres so verdicts can be tracked
// across CI runs.
package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Run is one finished harness run.
type Run struct {
	RunID        string    `db:"run_id" json:"run_id"`
	Topic        string    `db:"topic" json:"topic"`
	Passed       bool      `db:"passed" json:"passed"`
	FailedStep   string    `db:"failed_step" json:"failed_step"`
	FailureClass string    `db:"failure_class" json:"failure_class"`
	Detail       string    `db:"detail" json:"detail"`
	Generated    int       `db:"generated" json:"generated"`
	Produced     int       `db:"produced" json:"produced"`
	Restored     int       `db:"restored" json:"restored"`
	Mismatches   int       `db:"mismatches" json:"mismatches"`
	Traceparent  string    `db:"traceparent" json:"traceparent"`
	StartedAt    time.Time `db:"started_at" json:"started_at"`
	FinishedAt   time.Time `db:"finished_at" json:"finished_at"`
}

// DB is satisfied by *db.Pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS restore_runs (
	run_id        TEXT PRIMARY KEY,
	topic         TEXT NOT NULL,
	passed        BOOLEAN NOT NULL,
	failed_step   TEXT NOT NULL DEFAULT '',
	failure_class TEXT NOT NULL DEFAULT '',
	detail        TEXT NOT NULL DEFAULT '',
	generated     INTEGER NOT NULL DEFAULT 0,
	produced      INTEGER NOT NULL DEFAULT 0,
	restored      INTEGER NOT NULL DEFAULT 0,
	mismatches    INTEGER NOT NULL DEFAULT 0,
	traceparent   TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
)`

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *Repository) Record(ctx context.Context, run Run) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO restore_runs (run_id, topic, passed, failed_step, failure_class, detail,
			generated, produced, restored, mismatches, traceparent, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO NOTHING
	`, run.RunID, run.Topic, run.Passed, run.FailedStep, run.FailureClass, run.Detail,
		run.Generated, run.Produced, run.Restored, run.Mismatches, run.Traceparent,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	return err
}

// Recent returns the latest runs, newest first. An empty topic matches every topic.
func (r *Repository) Recent(ctx context.Context, topic string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT run_id, topic, passed, failed_step, failure_class, detail,
			generated, produced, restored, mismatches, traceparent, started_at, finished_at
		FROM restore_runs
		WHERE $1 = '' OR topic = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, topic, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Run])
}
