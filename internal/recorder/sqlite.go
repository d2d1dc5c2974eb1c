package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the job journal to a SQLite database.
type SQLiteRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
// It may share the file with the price store.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_runs (
			id          TEXT PRIMARY KEY,
			job         TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			success     INTEGER NOT NULL,
			records     INTEGER NOT NULL DEFAULT 0,
			detail      TEXT    NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_started ON job_runs(started_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordJobRun(ctx context.Context, run *JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO job_runs
		(id, job, started_at, finished_at, success, records, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Success, run.Records, run.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

type jobRunRow struct {
	ID         string `db:"id"`
	Job        string `db:"job"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
	Success    bool   `db:"success"`
	Records    int    `db:"records"`
	Detail     string `db:"detail"`
}

func (r *SQLiteRecorder) RecentJobRuns(ctx context.Context, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []jobRunRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, job, started_at, finished_at, success, records, detail
		FROM job_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	runs := make([]JobRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, JobRun{
			ID:         row.ID,
			Job:        row.Job,
			StartedAt:  time.UnixMilli(row.StartedAt),
			FinishedAt: time.UnixMilli(row.FinishedAt),
			Success:    row.Success,
			Records:    row.Records,
			Detail:     row.Detail,
		})
	}
	return runs, nil
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
