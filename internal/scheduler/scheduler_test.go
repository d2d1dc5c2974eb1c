package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceVault/internal/metrics"
	"PriceVault/internal/model"
	"PriceVault/internal/recorder"
	"PriceVault/internal/retriever"
	"PriceVault/internal/store"
	"PriceVault/internal/synthetic"
)

type stubFetcher struct{ err error }

func (f stubFetcher) Fetch(_ context.Context, symbol string, start, end time.Time) ([]model.PriceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.PriceRecord
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, model.PriceRecord{Symbol: symbol, Date: d, Price: 10})
	}
	return out, nil
}

func (stubFetcher) Name() string { return "stub" }

type captureNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureNotifier) Notify(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return nil
}

func (c *captureNotifier) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return ""
	}
	return c.msgs[len(c.msgs)-1]
}

type fixture struct {
	sched *Scheduler
	store *store.SQLiteStore
	rec   *recorder.SQLiteRecorder
	note  *captureNotifier
}

func newFixture(t *testing.T, fetchErr error) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(dir, "prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	note := &captureNotifier{}
	r := retriever.New(st, stubFetcher{err: fetchErr}, synthetic.New(1))
	s := NewScheduler(context.Background(), r, st, note, rec, Jobs{
		ArchiveCron:   "0 0 3 * * *",
		RefreshCron:   "0 0 22 * * 1-5",
		Watchlist:     []string{"AAPL", "MSFT"},
		RefreshDays:   5,
		RetentionDays: 10,
	})
	s.Metrics = metrics.New(prometheus.NewRegistry())
	s.today = func() time.Time { return model.NewDate(2024, 1, 21) }
	n := 0
	s.newID = func() string { n++; return "run-" + string(rune('0'+n)) }
	return &fixture{sched: s, store: st, rec: rec, note: note}
}

func TestArchiveTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for d := 1; d <= 15; d++ {
		require.NoError(t, f.store.Save(ctx, model.PriceRecord{Symbol: "AAPL", Date: model.NewDate(2024, 1, d), Price: 100}))
	}

	assert.Equal(t, model.NewDate(2024, 1, 11), f.sched.ArchiveCutoff())
	moved, err := f.sched.RunArchiveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, moved)

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.ArchivedRecords)
	assert.Equal(t, 5, stats.TotalRecords)

	assert.Contains(t, f.note.last(), "Moved 10 records dated before 2024-01-11")
	assert.Contains(t, f.note.last(), "run-1")

	runs, err := f.rec.RecentJobRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, recorder.JobArchive, runs[0].Job)
	assert.True(t, runs[0].Success)
	assert.Equal(t, 10, runs[0].Records)
}

func TestRefreshTask(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	results, err := f.sched.RunRefreshNow(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, retriever.OutcomeProvider, results[0].Outcome)
	assert.Equal(t, 6, results[1].Records)

	ok, err := f.store.HasData(ctx, "MSFT", model.NewDate(2024, 1, 16), model.NewDate(2024, 1, 21))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, f.note.last(), "AAPL: 6 records (provider)")

	f.sched.today = func() time.Time { return model.NewDate(2024, 1, 22) }
	results, err = f.sched.RunRefreshNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, retriever.OutcomeProvider, results[0].Outcome)

	ok, err = f.store.HasData(ctx, "AAPL", model.NewDate(2024, 1, 22), model.NewDate(2024, 1, 22))
	require.NoError(t, err)
	assert.True(t, ok, "next day's refresh stores the new day")
}

func TestRefreshTask_ProviderDown(t *testing.T) {
	f := newFixture(t, errors.New("HTTP 503"))
	ctx := context.Background()

	results, err := f.sched.RunRefreshNow(ctx)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, retriever.OutcomeSynthetic, r.Outcome)
	}

	runs, err := f.rec.RecentJobRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Detail, "2 of 2 symbols fell back")

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRecords)
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Save(ctx, model.PriceRecord{Symbol: "AAPL", Date: model.NewDate(2024, 1, 19), Price: 185.5}))

	assert.Contains(t, f.sched.HandleCommand(ctx, "/stats"), "Live records: 1")
	assert.Contains(t, f.sched.HandleCommand(ctx, "/latest aapl"), "Price: 185.50")
	assert.Equal(t, "Usage: /latest SYMBOL", f.sched.HandleCommand(ctx, "/latest"))
	assert.Equal(t, helpText, f.sched.HandleCommand(ctx, "hello"))
	assert.Equal(t, helpText, f.sched.HandleCommand(ctx, "  "))
	assert.Equal(t, "No job runs recorded yet.", f.sched.HandleCommand(ctx, "/jobs"))

	assert.Empty(t, f.sched.HandleCommand(ctx, "/archive"))
	assert.True(t, strings.Contains(f.note.last(), "Archive complete"))
	assert.Contains(t, f.sched.HandleCommand(ctx, "/jobs"), "archive")
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.sched.RegisterAll())
	assert.Len(t, f.sched.Cron.Entries(), 2)

	f = newFixture(t, nil)
	f.sched.Jobs.RefreshCron = "not a cron"
	assert.Error(t, f.sched.RegisterAll())
}

func TestNilOutputsDefaultToNoop(t *testing.T) {
	s := NewScheduler(context.Background(), nil, nil, nil, nil, Jobs{})
	assert.NotNil(t, s.Notifier)
	assert.NotNil(t, s.Recorder)
}
