package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/match"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in the temp dir.
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "verify.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Ingest.TimeoutSecs)
	assert.Equal(t, 3, cfg.Ingest.MaxRetries)
	assert.Equal(t, 4, cfg.Verify.Concurrency)
	assert.Equal(t, 2, cfg.Verify.BatchConcurrency)
	assert.Equal(t, 30*time.Second, cfg.HandlerTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.RemotePacing())
	assert.Equal(t, 24*time.Hour, cfg.SchedulerInterval())
	assert.Equal(t, time.Hour, cfg.SchedulerBackoff())
	assert.Equal(t, "https://www.nsopw.gov", cfg.NSOPW.BaseURL)
	assert.Equal(t, match.DefaultRules(), cfg.Matching)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/verify
log:
  level: debug
  format: console
server:
  port: 9090
sources:
  enabled: [oig, sam]
matching:
  high_confidence: 95
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"oig", "sam"}, cfg.Sources.Enabled)
	assert.Equal(t, 95, cfg.Matching.HighConfidence)
	// Defaults still apply for unset values
	assert.Equal(t, 80, cfg.Matching.Floor)
	assert.Equal(t, 4, cfg.Verify.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("VERIFY_STORE_DRIVER", "postgres")
	t.Setenv("VERIFY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("VERIFY_SERVER_PORT", "3000")
	t.Setenv("VERIFY_SOURCES_SAM_API_KEY", "sam-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sam-key", cfg.Sources.SAMKey)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "verify.db"
	cfg.Server.Port = 8080
	cfg.Ingest.TempDir = "/tmp/verify-ingest"
	cfg.Ingest.TimeoutSecs = 120
	cfg.Matching = match.DefaultRules()
	cfg.Verify.Concurrency = 4
	cfg.Verify.BatchConcurrency = 2
	cfg.Verify.HandlerTimeoutSecs = 30
	cfg.Scheduler.IntervalHours = 24
	cfg.Scheduler.ErrorBackoffMins = 60
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"migrate", "refresh", "verify", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for driver sqlite")

	cfg.Store.Driver = "memory"
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be memory, sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port is irrelevant outside serve.
	assert.NoError(t, cfg.Validate("verify"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Verify.Concurrency = 0
	err := cfg.Validate("verify")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "verify.concurrency must be between 1 and 64")

	cfg.Verify.Concurrency = 65
	assert.Error(t, cfg.Validate("verify"))

	cfg.Verify.Concurrency = 64
	assert.NoError(t, cfg.Validate("verify"))
}

func TestValidateMatching(t *testing.T) {
	cfg := validDefaults()
	cfg.Matching.Floor = 99

	err := cfg.Validate("verify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matching.floor (99) must not exceed matching.high_confidence (90)")

	cfg = validDefaults()
	cfg.Matching.MismatchedMiddle = 97
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exact >= partial_middle >= mismatched_middle")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = -1
	cfg.Scheduler.IntervalHours = 0
	cfg.Ingest.TimeoutSecs = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "scheduler.interval_hours must be >= 1")
	assert.Contains(t, err.Error(), "ingest.timeout_secs must be > 0")
}

func TestWarnings(t *testing.T) {
	cfg := validDefaults()
	assert.Len(t, cfg.Warnings(), 1)

	cfg.Sources.SAMKey = "key"
	assert.Empty(t, cfg.Warnings())

	cfg.Sources.SAMKey = ""
	cfg.Sources.Enabled = []string{"oig"}
	assert.Empty(t, cfg.Warnings())
}
