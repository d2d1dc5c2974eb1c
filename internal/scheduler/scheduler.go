package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"PriceVault/internal/metrics"
	"PriceVault/internal/model"
	"PriceVault/internal/notifier"
	"PriceVault/internal/recorder"
	"PriceVault/internal/retriever"
	"PriceVault/internal/store"
)

// Jobs configures the scheduled work.
type Jobs struct {
	ArchiveCron   string
	RefreshCron   string
	Watchlist     []string
	RefreshDays   int
	RetentionDays int
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron      *cron.Cron
	Retriever *retriever.Retriever
	Store     store.Store
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics
	Jobs      Jobs
	Ctx       context.Context

	today func() time.Time
	newID func() string
}

// NewScheduler creates a new Scheduler. A nil notifier or recorder disables that output.
func NewScheduler(ctx context.Context, r *retriever.Retriever, st store.Store, n notifier.Notifier, rec recorder.Recorder, jobs Jobs) *Scheduler {
	if n == nil {
		n = notifier.Noop{}
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Retriever: r,
		Store:     st,
		Notifier:  n,
		Recorder:  rec,
		Jobs:      jobs,
		Ctx:       ctx,
		today:     model.Today,
		newID:     uuid.NewString,
	}
}

// RegisterAll registers the archive and refresh jobs.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.Cron.AddFunc(s.Jobs.ArchiveCron, func() { s.archiveTask(s.Ctx) }); err != nil {
		return fmt.Errorf("register archive task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.Jobs.RefreshCron, func() { s.refreshTask(s.Ctx) }); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().
		Str("archive_cron", s.Jobs.ArchiveCron).
		Str("refresh_cron", s.Jobs.RefreshCron).
		Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// ArchiveCutoff is the first day kept live; older records are archived.
func (s *Scheduler) ArchiveCutoff() time.Time {
	return s.today().AddDate(0, 0, -s.Jobs.RetentionDays)
}

// RunArchiveNow executes the archive job immediately.
func (s *Scheduler) RunArchiveNow(ctx context.Context) (int, error) {
	return s.archiveTask(ctx)
}

// RunRefreshNow executes the refresh job immediately.
func (s *Scheduler) RunRefreshNow(ctx context.Context) ([]retriever.RefreshResult, error) {
	return s.refreshTask(ctx)
}

func (s *Scheduler) archiveTask(ctx context.Context) (int, error) {
	run := s.begin(recorder.JobArchive)
	l := log.With().Str("run_id", run.ID).Str("job", run.Job).Logger()
	cutoff := s.ArchiveCutoff()
	l.Info().Str("older_than", model.FormatDate(cutoff)).Msg("running archive task")

	moved, err := s.Store.Archive(ctx, cutoff)
	if err != nil {
		l.Error().Err(err).Msg("archive failed")
		run.Detail = err.Error()
	} else {
		l.Info().Int("moved", moved).Msg("archive finished")
		s.Metrics.RecordArchived(moved)
	}
	run.Records = moved
	s.finish(ctx, run, err == nil)
	s.trySend(ctx, notifier.FormatArchiveResult(run.ID, moved, model.FormatDate(cutoff), err))
	return moved, err
}

func (s *Scheduler) refreshTask(ctx context.Context) ([]retriever.RefreshResult, error) {
	run := s.begin(recorder.JobRefresh)
	l := log.With().Str("run_id", run.ID).Str("job", run.Job).Logger()
	l.Info().Strs("watchlist", s.Jobs.Watchlist).Int("days", s.Jobs.RefreshDays).Msg("running refresh task")

	results, err := s.Retriever.Refresh(ctx, s.Jobs.Watchlist, s.today(), s.Jobs.RefreshDays)
	synthetic := 0
	for _, r := range results {
		run.Records += r.Records
		if r.Outcome == retriever.OutcomeSynthetic {
			synthetic++
		}
	}
	if err != nil {
		l.Error().Err(err).Msg("refresh failed")
		run.Detail = err.Error()
	} else if synthetic > 0 {
		run.Detail = fmt.Sprintf("%d of %d symbols fell back to synthetic data", synthetic, len(results))
	}
	l.Info().Int("records", run.Records).Int("synthetic", synthetic).Msg("refresh finished")

	s.finish(ctx, run, err == nil)
	s.trySend(ctx, notifier.FormatRefreshSummary(run.ID, results))
	return results, err
}

func (s *Scheduler) begin(job string) *recorder.JobRun {
	return &recorder.JobRun{ID: s.newID(), Job: job, StartedAt: time.Now()}
}

func (s *Scheduler) finish(ctx context.Context, run *recorder.JobRun, success bool) {
	run.FinishedAt = time.Now()
	run.Success = success
	s.Metrics.RecordJobRun(run.Job, success)
	if err := s.Recorder.RecordJobRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("record job run")
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch strings.ToLower(fields[0]) {
	case "/stats":
		stats, err := s.Store.Stats(ctx)
		if err != nil {
			log.Error().Err(err).Msg("stats command")
			return "❌ Could not read storage statistics"
		}
		return notifier.FormatStats(stats)
	case "/latest":
		if len(fields) < 2 {
			return "Usage: /latest SYMBOL"
		}
		rec, outcome, err := s.Retriever.Latest(ctx, fields[1])
		if err != nil {
			log.Error().Err(err).Str("symbol", fields[1]).Msg("latest command")
			return fmt.Sprintf("❌ No price available for %s", model.NormalizeSymbol(fields[1]))
		}
		return notifier.FormatLatest(rec, outcome)
	case "/archive":
		// archiveTask reports through the notifier itself
		s.archiveTask(ctx)
		return ""
	case "/refresh":
		s.refreshTask(ctx)
		return ""
	case "/jobs":
		runs, err := s.Recorder.RecentJobRuns(ctx, 10)
		if err != nil {
			log.Error().Err(err).Msg("jobs command")
			return "❌ Could not read job history"
		}
		return notifier.FormatJobRuns(runs)
	default:
		return helpText
	}
}

const helpText = "Available commands:\n• /stats\n• /latest SYMBOL\n• /archive\n• /refresh\n• /jobs"

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if err := s.Notifier.Notify(ctx, text); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}
