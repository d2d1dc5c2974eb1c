package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"PriceVault/internal/model"
	"PriceVault/internal/recorder"
	"PriceVault/internal/retriever"
)

func dateOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatStats formats storage statistics for display.
func FormatStats(s model.StorageStats) string {
	var b strings.Builder
	b.WriteString("📦 <b>PriceVault storage</b>\n\n")
	b.WriteString(fmt.Sprintf("Live records: %d\n", s.TotalRecords))
	b.WriteString(fmt.Sprintf("Archived records: %d\n", s.ArchivedRecords))
	b.WriteString(fmt.Sprintf("Symbols: %d\n", s.UniqueSymbols))
	b.WriteString(fmt.Sprintf("Coverage: %s → %s\n",
		dateOrDash(model.FormatDate(s.EarliestDate)), dateOrDash(model.FormatDate(s.LatestDate))))
	return b.String()
}

// FormatArchiveResult reports one archive run.
func FormatArchiveResult(runID string, moved int, olderThan string, err error) string {
	if err != nil {
		return fmt.Sprintf("❌ <b>Archive failed</b> (before %s)\n\n%s\nrun %s",
			olderThan, html.EscapeString(err.Error()), runID)
	}
	return fmt.Sprintf("🗄 <b>Archive complete</b>\n\nMoved %d records dated before %s\nrun %s",
		moved, olderThan, runID)
}

// FormatRefreshSummary reports one watchlist refresh.
func FormatRefreshSummary(runID string, results []retriever.RefreshResult) string {
	var b strings.Builder
	b.WriteString("🔄 <b>Watchlist refresh</b>\n\n")
	for _, r := range results {
		switch {
		case r.Err != nil:
			b.WriteString(fmt.Sprintf("  %s: ❌ %s\n", r.Symbol, html.EscapeString(r.Err.Error())))
		case r.Outcome == retriever.OutcomeSynthetic:
			b.WriteString(fmt.Sprintf("  %s: ⚠️ provider unavailable\n", r.Symbol))
		default:
			b.WriteString(fmt.Sprintf("  %s: %d records (%s)\n", r.Symbol, r.Records, r.Outcome))
		}
	}
	b.WriteString(fmt.Sprintf("\nrun %s", runID))
	return b.String()
}

// FormatLatest formats the latest known price of a symbol.
func FormatLatest(rec model.PriceRecord, outcome retriever.Outcome) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💹 <b>%s</b> | %s\n\n", html.EscapeString(rec.Symbol), model.FormatDate(rec.Date)))
	b.WriteString(fmt.Sprintf("Price: %.2f (%+.2f, %+.2f%%)\n", rec.Price, rec.Change, rec.PercentChange))
	b.WriteString(fmt.Sprintf("Volume: %d\n", rec.Volume))
	if outcome == retriever.OutcomeSynthetic {
		b.WriteString("\n⚠️ Synthetic estimate, provider unavailable")
	}
	return b.String()
}

// FormatJobRuns lists recent scheduled job runs.
func FormatJobRuns(runs []recorder.JobRun) string {
	if len(runs) == 0 {
		return "No job runs recorded yet."
	}
	var b strings.Builder
	b.WriteString("🕒 <b>Recent jobs</b>\n\n")
	for _, r := range runs {
		mark := "✅"
		if !r.Success {
			mark = "❌"
		}
		b.WriteString(fmt.Sprintf("%s %s %s: %d records in %s\n",
			mark, r.StartedAt.Format("2006-01-02 15:04"), r.Job, r.Records, r.Duration().Round(time.Millisecond)))
	}
	return b.String()
}
