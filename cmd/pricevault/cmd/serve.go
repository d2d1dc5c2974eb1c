package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"PriceVault/internal/metrics"
	"PriceVault/internal/notifier"
	"PriceVault/internal/recorder"
	"PriceVault/internal/scheduler"
)

var runOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, Telegram commands and the metrics endpoint",
	Long:  `Runs the archive and refresh jobs on their cron schedules until interrupted with Ctrl+C.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", os.Getenv("RUN_ON_START") == "true", "refresh the watchlist immediately")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("pricevault starting")
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init job recorder failed, using noop")
		} else {
			rec = sr
			defer sr.Close()
		}
	}

	var (
		n  notifier.Notifier = notifier.Noop{}
		tn *notifier.TelegramNotifier
	)
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		n = tn
	}

	sched := scheduler.NewScheduler(ctx, a.retriever, a.store, n, rec, scheduler.Jobs{
		ArchiveCron:   cfg.Schedule.ArchiveCron,
		RefreshCron:   cfg.Schedule.RefreshCron,
		Watchlist:     cfg.Schedule.Watchlist,
		RefreshDays:   cfg.Schedule.RefreshDays,
		RetentionDays: cfg.Archive.RetentionDays,
	})
	sched.Metrics = metrics.Default
	if err := sched.RegisterAll(); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint listening")
	}

	if runOnStart {
		log.Info().Msg("run-on-start enabled, refreshing watchlist now")
		go sched.RunRefreshNow(ctx)
	}

	log.Info().Msg("pricevault is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping...")

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}
	return nil
}
