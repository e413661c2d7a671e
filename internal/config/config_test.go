package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		original, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, original)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_DefaultsWhenNoEnvSet(t *testing.T) {
	clearEnv(t, "ENVIRONMENT", "DEBUG", "LOG_LEVEL", "API_HOST", "API_PORT", "DATA_DIR",
		"LOAD_FORECAST_URL", "LOAD_FORECAST_API_KEY")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 7, cfg.Scheduler.TriggerHour)
	assert.Equal(t, 60, cfg.Scheduler.MisfireGraceSeconds)
	assert.False(t, cfg.Archival.Enabled)
}

func TestLoad_ReadsUpstreamFeedEnvVars(t *testing.T) {
	clearEnv(t, "LOAD_FORECAST_URL", "LOAD_FORECAST_API_KEY", "HISTORICAL_PRICES_URL")

	os.Setenv("LOAD_FORECAST_URL", "https://example.test/load")
	os.Setenv("LOAD_FORECAST_API_KEY", "secret-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/load", cfg.LoadForecastURL)
	assert.Equal(t, "secret-key", cfg.LoadForecastAPIKey)
}

func TestLoad_MalformedIntFallsBackToDefault(t *testing.T) {
	clearEnv(t, "API_PORT")
	os.Setenv("API_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.APIPort)
}

func TestLoad_MalformedBoolFallsBackToDefault(t *testing.T) {
	clearEnv(t, "DEBUG")
	os.Setenv("DEBUG", "not-a-bool")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Debug)
}

func TestLoad_YAMLOverlayOverridesEnvDefaults(t *testing.T) {
	clearEnv(t, "API_PORT", "LOG_LEVEL")

	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(overlayPath, []byte(`
log_level: debug
api_port: 9090
scheduler:
  trigger_hour: 9
archival:
  enabled: true
  bucket: gridcast-archive
`), 0o644))

	cfg, err := Load(overlayPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, 9, cfg.Scheduler.TriggerHour)
	assert.True(t, cfg.Archival.Enabled)
	assert.Equal(t, "gridcast-archive", cfg.Archival.Bucket)
}

func TestLoad_MalformedYAMLOverlayFails(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(overlayPath, []byte("not: [valid: yaml"), 0o644))

	_, err := Load(overlayPath)
	assert.Error(t, err)
}

func TestLoad_MissingYAMLOverlayFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidTriggerHourFailsValidation(t *testing.T) {
	clearEnv(t, "SCHEDULER_TRIGGER_HOUR")
	os.Setenv("SCHEDULER_TRIGGER_HOUR", "25")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_InvalidAPIPortFailsValidation(t *testing.T) {
	clearEnv(t, "API_PORT")
	os.Setenv("API_PORT", "99999")

	_, err := Load("")
	assert.Error(t, err)
}
