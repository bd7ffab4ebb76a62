package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

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
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "storefronts.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout())
	assert.Equal(t, int64(2<<20), cfg.Fetch.MaxBodyBytes)
	assert.Equal(t, 2, cfg.Fetch.MaxAttempts)
	assert.Zero(t, cfg.Fetch.RatePerHost)
	assert.Equal(t, 20, cfg.Batch.Concurrency)
	assert.Equal(t, 100, cfg.Batch.CommitSize)
	assert.Equal(t, 1000, cfg.Batch.Limit)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.uber.com", cfg.Uber.BaseURL)
	assert.Equal(t, 5, cfg.Uber.Concurrency)
	assert.Equal(t, "storefronts.csv", cfg.Export.Output)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/storefronts
log:
  level: debug
  format: console
batch:
  concurrency: 8
detect:
  catalog_path: signals.yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/storefronts", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "signals.yaml", cfg.Detect.CatalogPath)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Batch.CommitSize)
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

	t.Setenv("STOREFRONT_STORE_DRIVER", "postgres")
	t.Setenv("STOREFRONT_LOG_LEVEL", "warn")
	t.Setenv("STOREFRONT_UBER_CLIENT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "s3cret", cfg.Uber.ClientSecret)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0644))

	_, err := Load()
	assert.Error(t, err)
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
	cfg.Store.DatabaseURL = "storefronts.db"
	cfg.Fetch.TimeoutSecs = 10
	cfg.Batch.Concurrency = 20
	cfg.Batch.CommitSize = 100
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateDiscover(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("discover"))

	cfg.Batch.Concurrency = 0
	cfg.Batch.CommitSize = 0
	err := cfg.Validate("discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 200")
	assert.Contains(t, err.Error(), "batch.commit_size must be > 0")
}

func TestValidateCheckUber_MissingCredentials(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("check-uber")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uber.client_id is required")
	assert.Contains(t, err.Error(), "uber.customer_id is required")

	cfg.Uber = UberConfig{ClientID: "id", ClientSecret: "secret", CustomerID: "cust"}
	assert.NoError(t, cfg.Validate("check-uber"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
