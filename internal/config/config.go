package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"PriceVault/internal/collector"
	"PriceVault/internal/logger"
	"PriceVault/internal/store"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Provider struct {
		Name      string        `yaml:"name"`
		BaseURL   string        `yaml:"base_url"`
		APIKey    string        `yaml:"api_key"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
		Burst     int           `yaml:"burst"`
	} `yaml:"provider"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Retrieval struct {
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
		Seed         int64         `yaml:"seed"` // 0 = random synthetic series
	} `yaml:"retrieval"`
	Schedule struct {
		ArchiveCron string   `yaml:"archive_cron"`
		RefreshCron string   `yaml:"refresh_cron"`
		Watchlist   []string `yaml:"watchlist"`
		RefreshDays int      `yaml:"refresh_days"`
	} `yaml:"schedule"`
	Archive struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"archive"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"`
		FileEnabled   bool   `yaml:"file_enabled"`
		Dir           string `yaml:"dir"`
		MaxSizeMB     int    `yaml:"max_size_mb"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"PRICEVAULT_PROVIDER":          &c.Provider.Name,
		"PRICEVAULT_PROVIDER_BASE_URL": &c.Provider.BaseURL,
		"PRICEVAULT_API_KEY":           &c.Provider.APIKey,
		"PRICEVAULT_DB_DRIVER":         &c.Database.Driver,
		"PRICEVAULT_SQLITE_PATH":       &c.Database.SQLitePath,
		"PRICEVAULT_POSTGRES_DSN":      &c.Database.PostgresDSN,
		"PRICEVAULT_ARCHIVE_CRON":      &c.Schedule.ArchiveCron,
		"PRICEVAULT_REFRESH_CRON":      &c.Schedule.RefreshCron,
		"PRICEVAULT_LOG_LEVEL":         &c.Log.Level,
		"PRICEVAULT_LOG_FORMAT":        &c.Log.Format,
		"PRICEVAULT_METRICS_ADDR":      &c.Metrics.Addr,
		"TELEGRAM_BOT_TOKEN":           &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":             &c.Telegram.ChatID,
		"HTTPS_PROXY":                  &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PRICEVAULT_WATCHLIST"); v != "" {
		c.Schedule.Watchlist = splitList(v)
	}
	if v := os.Getenv("PRICEVAULT_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PRICEVAULT_RETENTION_DAYS: %w", err)
		}
		c.Archive.RetentionDays = n
	}
	if v := os.Getenv("PRICEVAULT_FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PRICEVAULT_FETCH_TIMEOUT: %w", err)
		}
		c.Retrieval.FetchTimeout = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = collector.ProviderYahoo
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = store.DriverSQLite
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pricevault.db"
	}
	if c.Retrieval.FetchTimeout == 0 {
		c.Retrieval.FetchTimeout = 15 * time.Second
	}
	if c.Schedule.ArchiveCron == "" {
		c.Schedule.ArchiveCron = "0 0 3 * * *"
	}
	if c.Schedule.RefreshCron == "" {
		c.Schedule.RefreshCron = "0 0 22 * * 1-5"
	}
	if len(c.Schedule.Watchlist) == 0 {
		c.Schedule.Watchlist = []string{"AAPL", "MSFT", "GOOGL", "AMZN"}
	}
	if c.Schedule.RefreshDays == 0 {
		c.Schedule.RefreshDays = 5
	}
	if c.Archive.RetentionDays == 0 {
		c.Archive.RetentionDays = 365
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "pretty"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Provider.Name) {
	case collector.ProviderYahoo:
	case collector.ProviderAlphaVantage:
		if c.Provider.APIKey == "" {
			errs = append(errs, errors.New("provider.api_key is required for alphavantage"))
		}
	case collector.ProviderBars:
		if c.Provider.BaseURL == "" {
			errs = append(errs, errors.New("provider.base_url is required for bars"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.name %q is not supported", c.Provider.Name))
	}

	switch strings.ToLower(c.Database.Driver) {
	case store.DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required"))
		}
	case store.DriverPostgres, "pgx":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgres_dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Retrieval.FetchTimeout < 0 {
		errs = append(errs, errors.New("retrieval.fetch_timeout must not be negative"))
	}
	if c.Archive.RetentionDays <= 0 {
		errs = append(errs, errors.New("archive.retention_days must be positive"))
	}
	if c.Schedule.RefreshDays <= 0 {
		errs = append(errs, errors.New("schedule.refresh_days must be positive"))
	}
	for name, spec := range map[string]string{
		"schedule.archive_cron": c.Schedule.ArchiveCron,
		"schedule.refresh_cron": c.Schedule.RefreshCron,
	} {
		if _, err := cronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		errs = append(errs, errors.New("telegram.bot_token and telegram.chat_id must be set together"))
	}
	return errors.Join(errs...)
}

// TelegramEnabled reports whether notifications and chat commands are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func (c *Config) CollectorOptions() collector.Options {
	return collector.Options{
		Provider:  c.Provider.Name,
		BaseURL:   c.Provider.BaseURL,
		APIKey:    c.Provider.APIKey,
		Proxy:     c.Proxy,
		Timeout:   c.Provider.Timeout,
		RateLimit: c.Provider.RateLimit,
		Burst:     c.Provider.Burst,
	}
}

func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:      c.Database.Driver,
		SQLitePath:  c.Database.SQLitePath,
		PostgresDSN: c.Database.PostgresDSN,
	}
}

func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:         c.Log.Level,
		Format:        c.Log.Format,
		FileEnabled:   c.Log.FileEnabled,
		Dir:           c.Log.Dir,
		MaxSizeMB:     c.Log.MaxSizeMB,
		RetentionDays: c.Log.RetentionDays,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
