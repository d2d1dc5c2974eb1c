// Package cmd holds the pricevault CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"PriceVault/internal/collector"
	"PriceVault/internal/config"
	"PriceVault/internal/logger"
	"PriceVault/internal/metrics"
	"PriceVault/internal/retriever"
	"PriceVault/internal/store"
	"PriceVault/internal/synthetic"
)

var (
	cfgFile string
	envFile string
	verbose bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pricevault",
	Short: "Daily price history store with provider fallback",
	Long: `pricevault keeps daily closing prices per symbol, fetching from the
configured provider on a miss and archiving old records on a schedule.

Commands:
    serve       scheduler, Telegram commands and /metrics
    history     price history for one symbol
    compare     two symbols over the same range
    latest      most recent known price
    analyze     summary statistics over a range
    archive     move old records into the archive set
    stats       storage statistics
`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, historyCmd, compareCmd, latestCmd, analyzeCmd, archiveCmd, statsCmd)
}

func initConfig(cmd *cobra.Command, _ []string) error {
	// A missing .env is fine; the environment may already be set.
	envErr := godotenv.Load(envFile)

	path := cfgFile
	if path == "" {
		path = config.Path()
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if verbose {
		c.Log.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := logger.Init(c.LoggerConfig()); err != nil {
		return err
	}
	if envErr != nil {
		log.Debug().Str("file", envFile).Msg("no dotenv file loaded")
	}
	cfg = c
	return nil
}

// app bundles the components a command needs.
type app struct {
	store     store.Store
	retriever *retriever.Retriever
}

func newApp(ctx context.Context) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fetcher, err := collector.NewFetcher(cfg.CollectorOptions())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init provider: %w", err)
	}

	gen := synthetic.NewRandom()
	if cfg.Retrieval.Seed != 0 {
		gen = synthetic.New(cfg.Retrieval.Seed)
	}
	r := retriever.New(st, fetcher, gen,
		retriever.WithFetchTimeout(cfg.Retrieval.FetchTimeout),
		retriever.WithMetrics(metrics.Default),
	)
	log.Debug().Str("provider", fetcher.Name()).Str("driver", cfg.Database.Driver).Msg("components ready")
	return &app{store: st, retriever: r}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("close store")
	}
}
