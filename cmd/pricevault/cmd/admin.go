package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"PriceVault/internal/model"
	"PriceVault/internal/recorder"
	"PriceVault/internal/scheduler"
	"PriceVault/internal/store"
)

var olderThanFlag string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move records older than the retention window into the archive set",
	Long: `Moves every live record dated strictly before the cutoff into the archive set
in one transaction. The cutoff defaults to today minus archive.retention_days.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var rec recorder.Recorder
		if cfg.Database.Driver == store.DriverSQLite {
			if sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath); err == nil {
				rec = sr
				defer sr.Close()
			}
		}
		sched := scheduler.NewScheduler(ctx, a.retriever, a.store, nil, rec, scheduler.Jobs{
			RetentionDays: cfg.Archive.RetentionDays,
		})

		cutoff := sched.ArchiveCutoff()
		if olderThanFlag != "" {
			d, err := model.ParseDate(olderThanFlag)
			if err != nil {
				return err
			}
			moved, err := a.store.Archive(ctx, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d records dated before %s\n", moved, model.FormatDate(d))
			return nil
		}

		moved, err := sched.RunArchiveNow(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d records dated before %s\n", moved, model.FormatDate(cutoff))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print storage statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, stats)
		}
		fmt.Fprintf(out, "live records:     %d\n", stats.TotalRecords)
		fmt.Fprintf(out, "archived records: %d\n", stats.ArchivedRecords)
		fmt.Fprintf(out, "unique symbols:   %d\n", stats.UniqueSymbols)
		fmt.Fprintf(out, "earliest date:    %s\n", model.FormatDate(stats.EarliestDate))
		fmt.Fprintf(out, "latest date:      %s\n", model.FormatDate(stats.LatestDate))
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVar(&olderThanFlag, "older-than", "", "explicit cutoff, YYYY-MM-DD")
}
