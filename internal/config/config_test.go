package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "panel.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Warehouse.QuerySecs)
	assert.Equal(t, []string{"LU", "LC", "LS"}, cfg.Link.Priority)
	assert.False(t, cfg.Link.EndExclusive)
	assert.Equal(t, "via-link", cfg.Merge.Mode)
	assert.Equal(t, "exact", cfg.Merge.Align)
	assert.Equal(t, 20, cfg.Validation.SampleLimit)
	assert.InDelta(t, 0.01, cfg.Derive.WinsorizeLower, 1e-9)
	assert.InDelta(t, 0.99, cfg.Derive.WinsorizeUpper, 1e-9)
	assert.Equal(t, "out", cfg.Pipeline.OutDir)
	assert.InDelta(t, 2.0, cfg.Fetch.RatePerSec, 1e-9)
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/panel
log:
  level: debug
  format: console
server:
  port: 9090
link:
  priority: [LC, LU]
  end_exclusive: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/panel", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"LC", "LU"}, cfg.Link.Priority)
	assert.True(t, cfg.Link.EndExclusive)
	// Defaults still apply for unset values
	assert.Equal(t, "exact", cfg.Merge.Align)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PANEL_STORE_DRIVER", "postgres")
	t.Setenv("PANEL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("PANEL_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = "panel.db"
	cfg.Derive.WinsorizeLower = 0.01
	cfg.Derive.WinsorizeUpper = 0.99
	cfg.Pipeline.OutDir = "out"
	cfg.Warehouse.QuerySecs = 120
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_OK(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidateRun_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidatePull_NoWarehouse(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("pull")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWinsorizeBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Derive.WinsorizeLower = 0.6
	cfg.Derive.WinsorizeUpper = 0.4

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "winsorize_lower must be below")
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
