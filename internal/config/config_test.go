package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pricetrack.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Fetch.TimeoutSecs)
	assert.InDelta(t, 2.0, cfg.Fetch.HostRPS, 0.001)
	assert.Equal(t, 3, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 30, cfg.Batch.SupplierTimeoutSecs)
	assert.False(t, cfg.Batch.SkipUnchanged)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Server.CacheTTLSecs)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 0.10, cfg.Monitoring.PriceDropThreshold, 0.001)
	assert.Equal(t, 48, cfg.Monitoring.StaleAfterHours)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "pricetrack", cfg.Telemetry.ServiceName)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/pricetrack
log:
  level: debug
  format: console
batch:
  max_concurrency: 1
  skip_unchanged: true
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/pricetrack", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 1, cfg.Batch.MaxConcurrency)
	assert.True(t, cfg.Batch.SkipUnchanged)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Fetch.TimeoutSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PRICETRACK_STORE_DRIVER", "postgres")
	t.Setenv("PRICETRACK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvLocalFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"),
		[]byte("PRICETRACK_MONITORING_WEBHOOK_URL=https://hooks.example.com/abc\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PRICETRACK_MONITORING_WEBHOOK_URL") }) //nolint:errcheck

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/abc", cfg.Monitoring.WebhookURL)
}

func TestLoadEnvWinsOverEnvLocal(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"),
		[]byte("PRICETRACK_SERVER_PORT=1111\n"), 0o600))
	t.Setenv("PRICETRACK_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0o644))

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
	cfg.Store.SQLitePath = "pricetrack.db"
	cfg.Fetch.TimeoutSecs = 10
	cfg.Batch.MaxConcurrency = 3
	cfg.Batch.SupplierTimeoutSecs = 30
	cfg.Monitoring.FailureRateThreshold = 0.5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate(""))
	assert.NoError(t, cfg.Validate("batch"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/test"
	assert.NoError(t, cfg.Validate(""))
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `got "mysql"`)
}

func TestValidate_BatchFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.MaxConcurrency = 0
	cfg.Batch.SupplierTimeoutSecs = 0
	cfg.Fetch.TimeoutSecs = -1

	assert.NoError(t, cfg.Validate(""), "store-only commands ignore batch settings")

	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_concurrency must be at least 1")
	assert.Contains(t, err.Error(), "batch.supplier_timeout_secs must be positive")
	assert.Contains(t, err.Error(), "fetch.timeout_secs must be positive")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("batch"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}
