package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/verify-cli/internal/match"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Matching  match.Rules     `yaml:"matching" mapstructure:"matching"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	NSOPW     NSOPWConfig     `yaml:"nsopw" mapstructure:"nsopw"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // memory, sqlite, postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures bulk downloads.
type IngestConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// SourcesConfig selects and credentials catalog sources.
type SourcesConfig struct {
	CatalogFile string   `yaml:"catalog_file" mapstructure:"catalog_file"`
	Enabled     []string `yaml:"enabled" mapstructure:"enabled"`
	SAMKey      string   `yaml:"sam_api_key" mapstructure:"sam_api_key"`
}

// VerifyConfig configures the orchestrator.
type VerifyConfig struct {
	Concurrency        int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchConcurrency   int `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	HandlerTimeoutSecs int `yaml:"handler_timeout_secs" mapstructure:"handler_timeout_secs"`
	RemotePacingMs     int `yaml:"remote_pacing_ms" mapstructure:"remote_pacing_ms"`
}

// SchedulerConfig configures background refresh.
type SchedulerConfig struct {
	IntervalHours    int `yaml:"interval_hours" mapstructure:"interval_hours"`
	ErrorBackoffMins int `yaml:"error_backoff_mins" mapstructure:"error_backoff_mins"`
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
}

// NSOPWConfig configures the live sex offender registry search.
type NSOPWConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rules := match.DefaultRules()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "verify.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.temp_dir", "/tmp/verify-ingest")
	v.SetDefault("ingest.user_agent", "verify-cli/1.0")
	v.SetDefault("ingest.timeout_secs", 120)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("sources.catalog_file", "")
	v.SetDefault("sources.sam_api_key", "")
	v.SetDefault("matching.exact", rules.Exact)
	v.SetDefault("matching.partial_middle", rules.PartialMiddle)
	v.SetDefault("matching.mismatched_middle", rules.MismatchedMiddle)
	v.SetDefault("matching.full_substring", rules.FullSubstring)
	v.SetDefault("matching.substring", rules.Substring)
	v.SetDefault("matching.tokens", rules.Tokens)
	v.SetDefault("matching.dob_confirmed", rules.DOBConfirmed)
	v.SetDefault("matching.floor", rules.Floor)
	v.SetDefault("matching.high_confidence", rules.HighConfidence)
	v.SetDefault("matching.max_returned", rules.MaxReturned)
	v.SetDefault("verify.concurrency", 4)
	v.SetDefault("verify.batch_concurrency", 2)
	v.SetDefault("verify.handler_timeout_secs", 30)
	v.SetDefault("verify.remote_pacing_ms", 100)
	v.SetDefault("scheduler.interval_hours", 24)
	v.SetDefault("scheduler.error_backoff_mins", 60)
	v.SetDefault("scheduler.concurrency", 2)
	v.SetDefault("nsopw.base_url", "https://www.nsopw.gov")
	v.SetDefault("nsopw.timeout_secs", 15)

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

// Validate checks the keys a command mode depends on. Modes: "verify",
// "refresh", "serve", "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for driver %s", c.Store.Driver)
		}
	default:
		add("store.driver must be memory, sqlite or postgres (got %q)", c.Store.Driver)
	}

	switch mode {
	case "migrate":
	case "refresh":
		c.validateIngest(add)
	case "verify":
		c.validateIngest(add)
		c.validateVerify(add)
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		c.validateIngest(add)
		c.validateVerify(add)
		if c.Scheduler.IntervalHours < 1 {
			add("scheduler.interval_hours must be >= 1")
		}
		if c.Scheduler.ErrorBackoffMins < 1 {
			add("scheduler.error_backoff_mins must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateIngest(add func(string, ...any)) {
	if c.Ingest.TimeoutSecs <= 0 {
		add("ingest.timeout_secs must be > 0")
	}
	if c.Ingest.TempDir == "" {
		add("ingest.temp_dir is required")
	}
}

func (c *Config) validateVerify(add func(string, ...any)) {
	if c.Verify.Concurrency < 1 || c.Verify.Concurrency > 64 {
		add("verify.concurrency must be between 1 and 64")
	}
	if c.Verify.BatchConcurrency < 1 || c.Verify.BatchConcurrency > 64 {
		add("verify.batch_concurrency must be between 1 and 64")
	}
	if c.Verify.HandlerTimeoutSecs <= 0 {
		add("verify.handler_timeout_secs must be > 0")
	}
	if c.Verify.RemotePacingMs < 0 {
		add("verify.remote_pacing_ms must be >= 0")
	}
	r := c.Matching
	if r.Floor > r.HighConfidence {
		add("matching.floor (%d) must not exceed matching.high_confidence (%d)", r.Floor, r.HighConfidence)
	}
	if r.MismatchedMiddle > r.PartialMiddle || r.PartialMiddle > r.Exact {
		add("matching scores must satisfy exact >= partial_middle >= mismatched_middle")
	}
}

// Warnings reports settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var out []string
	if c.Sources.SAMKey == "" && c.sourceEnabled("sam") {
		out = append(out, "sources.sam_api_key is empty; the sam source will fail to refresh")
	}
	return out
}

func (c *Config) sourceEnabled(id string) bool {
	if len(c.Sources.Enabled) == 0 {
		return true
	}
	for _, e := range c.Sources.Enabled {
		if strings.EqualFold(strings.TrimSpace(e), id) {
			return true
		}
	}
	return false
}

// HandlerTimeout returns the per-handler timeout.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.Verify.HandlerTimeoutSecs) * time.Second
}

// RemotePacing returns the gap between remote handler calls.
func (c *Config) RemotePacing() time.Duration {
	return time.Duration(c.Verify.RemotePacingMs) * time.Millisecond
}

// SchedulerInterval returns the time between refresh cycles.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalHours) * time.Hour
}

// SchedulerBackoff returns the wait after a failed cycle.
func (c *Config) SchedulerBackoff() time.Duration {
	return time.Duration(c.Scheduler.ErrorBackoffMins) * time.Minute
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
