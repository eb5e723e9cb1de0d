package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Quality QualityConfig `yaml:"quality" mapstructure:"quality"`
	Archive ArchiveConfig `yaml:"archive" mapstructure:"archive"`
	Fields  FieldsConfig  `yaml:"fields" mapstructure:"fields"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Monitor MonitorConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FetchConfig configures outbound requests to the exchanges and the
// reference source. Intervals are the minimum gap between requests per host.
type FetchConfig struct {
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs        int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries         int    `yaml:"max_retries" mapstructure:"max_retries"`
	NSEIntervalMS      int    `yaml:"nse_interval_ms" mapstructure:"nse_interval_ms"`
	BSEIntervalMS      int    `yaml:"bse_interval_ms" mapstructure:"bse_interval_ms"`
	ScreenerIntervalMS int    `yaml:"screener_interval_ms" mapstructure:"screener_interval_ms"`
}

// Timeout returns the per-request timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// BatchConfig configures per-company concurrency.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
}

// QualityConfig configures the cross-check against the reference source.
type QualityConfig struct {
	SampleSize       int    `yaml:"sample_size" mapstructure:"sample_size"`
	ReferenceBaseURL string `yaml:"reference_base_url" mapstructure:"reference_base_url"`
}

// ArchiveConfig configures raw filing storage.
type ArchiveConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	Path      string `yaml:"path" mapstructure:"path"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// FieldsConfig extends the built-in label aliases. Keys are canonical field
// names; values are extra labels that map to them.
type FieldsConfig struct {
	AliasOverrides map[string][]string `yaml:"alias_overrides" mapstructure:"alias_overrides"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitorConfig configures run log alerting. StaleJobs lists jobs that must
// have succeeded at least once within the lookback window.
type MonitorConfig struct {
	Enabled              bool     `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string   `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64  `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int      `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int      `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	StaleJobs            []string `yaml:"stale_jobs" mapstructure:"stale_jobs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FILINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key gets one so AutomaticEnv can see it on Unmarshal.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (X11; Linux x86_64) filings-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.nse_interval_ms", 500)
	v.SetDefault("fetch.bse_interval_ms", 300)
	v.SetDefault("fetch.screener_interval_ms", 1000)
	v.SetDefault("batch.max_concurrent_companies", 3)
	v.SetDefault("quality.sample_size", 100)
	v.SetDefault("quality.reference_base_url", "https://www.screener.in")
	v.SetDefault("archive.driver", "local")
	v.SetDefault("archive.path", "./data/raw")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("archive.region", "ap-south-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.stale_jobs", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: migrate, ingest,
// compute, quality, serve, report, monitor.
func (c *Config) Validate(mode string) error {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "migrate", "compute", "report":
		c.validateStore(need)
	case "ingest":
		c.validateStore(need)
		c.validateFetch(need)
		c.validateArchive(need)
	case "quality":
		c.validateStore(need)
		c.validateFetch(need)
		need(c.Quality.SampleSize > 0, "quality.sample_size must be > 0")
		need(c.Quality.ReferenceBaseURL != "", "quality.reference_base_url is required")
	case "serve":
		c.validateStore(need)
		need(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be > 0 and < 65536")
		if c.Monitor.Enabled {
			c.validateMonitor(need)
		}
	case "monitor":
		c.validateStore(need)
		c.validateMonitor(need)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	need(c.Batch.MaxConcurrentCompanies >= 1 && c.Batch.MaxConcurrentCompanies <= 50,
		"batch.max_concurrent_companies must be between 1 and 50")

	if len(problems) > 0 {
		return eris.New(fmt.Sprintf("config: invalid for %s: %s", mode, strings.Join(problems, "; ")))
	}
	return nil
}

func (c *Config) validateStore(need func(bool, string)) {
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		need(false, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}
	need(c.Store.DatabaseURL != "", "store.database_url is required")
	need(c.Store.MinConns <= c.Store.MaxConns, "store.min_conns must not exceed store.max_conns")
}

func (c *Config) validateMonitor(need func(bool, string)) {
	need(c.Monitor.FailureRateThreshold >= 0 && c.Monitor.FailureRateThreshold <= 1,
		"monitoring.failure_rate_threshold must be between 0 and 1")
	need(c.Monitor.LookbackWindowHours > 0, "monitoring.lookback_window_hours must be > 0")
}

func (c *Config) validateFetch(need func(bool, string)) {
	need(c.Fetch.TimeoutSecs > 0, "fetch.timeout_secs must be > 0")
	need(c.Fetch.MaxRetries >= 1, "fetch.max_retries must be >= 1")
	need(c.Fetch.NSEIntervalMS >= 0 && c.Fetch.BSEIntervalMS >= 0 && c.Fetch.ScreenerIntervalMS >= 0,
		"fetch intervals must be >= 0")
}

func (c *Config) validateArchive(need func(bool, string)) {
	switch c.Archive.Driver {
	case "", "local":
		need(c.Archive.Path != "", "archive.path is required for the local driver")
	case "s3":
		need(c.Archive.Bucket != "", "archive.bucket is required for the s3 driver")
	case "none":
	default:
		need(false, fmt.Sprintf("archive.driver %q must be local, s3 or none", c.Archive.Driver))
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
