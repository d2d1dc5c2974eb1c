package recorder

import (
	"context"
	"time"
)

const (
	JobArchive = "archive"
	JobRefresh = "refresh"
)

// JobRun is one execution of a scheduled job.
type JobRun struct {
	ID         string // uuid shared with the run's log lines
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	Records    int // archived or refreshed records
	Detail     string
}

func (r JobRun) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Recorder keeps a journal of scheduled job runs.
type Recorder interface {
	RecordJobRun(ctx context.Context, run *JobRun) error
	// RecentJobRuns returns up to limit runs, newest first.
	RecentJobRuns(ctx context.Context, limit int) ([]JobRun, error)
	Close() error
}
