// Package config loads application configuration the way the teacher's
// internal/config package does: a .env file if present, then
// environment variables with defaults, with every field optional. A
// missing or malformed environment value falls back to its default; Load
// fails only on an unreadable or unparseable YAML overlay or a failed
// Validate check.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SchedulerConfig configures the daily trigger.
type SchedulerConfig struct {
	TriggerHour         int `yaml:"trigger_hour"`
	MisfireGraceSeconds int `yaml:"misfire_grace_seconds"`
	JobTimeoutSeconds   int `yaml:"job_timeout_seconds"`
}

// PipelineConfig configures the Pipeline Executor.
type PipelineConfig struct {
	ParallelForecast bool `yaml:"parallel_forecast"`
}

// ArchivalConfig configures the archival job.
type ArchivalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RetentionDays int    `yaml:"retention_days"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"` // non-empty for R2/S3-compatible endpoints
}

// Config holds application configuration, including the Scheduler,
// Pipeline, and Archival sub-configs.
type Config struct {
	Environment string // development|staging|production
	Debug       bool
	LogLevel    string
	APIHost     string
	APIPort     int
	DataDir     string // store root
	StorageFormat string // registered internal/store/format codec name

	LoadForecastURL          string
	LoadForecastAPIKey       string
	HistoricalPricesURL      string
	HistoricalPricesAPIKey   string
	GenerationForecastURL    string
	GenerationForecastAPIKey string

	Scheduler SchedulerConfig
	Pipeline  PipelineConfig
	Archival  ArchivalConfig
}

// Load reads configuration from a .env file (if present), then
// environment variables, then an optional YAML overlay file, in that
// increasing-precedence order.
func Load(yamlOverlayPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Debug:       getEnvAsBool("DEBUG", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		APIHost:     getEnv("API_HOST", "0.0.0.0"),
		APIPort:     getEnvAsInt("API_PORT", 8080),
		DataDir:     getEnv("DATA_DIR", "./data"),
		StorageFormat: getEnv("STORAGE_FORMAT", "json"),

		LoadForecastURL:          getEnv("LOAD_FORECAST_URL", "http://localhost:9001/load_forecast"),
		LoadForecastAPIKey:       getEnv("LOAD_FORECAST_API_KEY", ""),
		HistoricalPricesURL:      getEnv("HISTORICAL_PRICES_URL", "http://localhost:9001/historical_prices"),
		HistoricalPricesAPIKey:   getEnv("HISTORICAL_PRICES_API_KEY", ""),
		GenerationForecastURL:    getEnv("GENERATION_FORECAST_URL", "http://localhost:9001/generation_forecast"),
		GenerationForecastAPIKey: getEnv("GENERATION_FORECAST_API_KEY", ""),

		Scheduler: SchedulerConfig{
			TriggerHour:         getEnvAsInt("SCHEDULER_TRIGGER_HOUR", 7),
			MisfireGraceSeconds: getEnvAsInt("SCHEDULER_MISFIRE_GRACE_SECONDS", 60),
			JobTimeoutSeconds:   getEnvAsInt("SCHEDULER_JOB_TIMEOUT_SECONDS", 3600),
		},
		Pipeline: PipelineConfig{
			ParallelForecast: getEnvAsBool("PIPELINE_PARALLEL_FORECAST", false),
		},
		Archival: ArchivalConfig{
			Enabled:       getEnvAsBool("ARCHIVAL_ENABLED", false),
			RetentionDays: getEnvAsInt("ARCHIVAL_RETENTION_DAYS", 90),
			Bucket:        getEnv("ARCHIVAL_BUCKET", ""),
			Region:        getEnv("ARCHIVAL_REGION", "auto"),
			Endpoint:      getEnv("ARCHIVAL_ENDPOINT", ""),
		},
	}

	if yamlOverlayPath != "" {
		if err := applyYAMLOverlay(cfg, yamlOverlayPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyYAMLOverlay merges a YAML file's fields onto cfg. Only fields the
// file sets to a non-zero value override cfg's env-derived values (debug
// overrides whenever present), so a zero value in the file, such as
// trigger_hour: 0 or parallel_forecast: false, leaves the env-derived
// value in place; this mirrors --config_file being a thin overlay, not a
// full replacement, per the CLI's documented precedence.
func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading overlay %s: %w", path, err)
	}
	var overlay struct {
		Environment string          `yaml:"environment"`
		Debug       *bool           `yaml:"debug"`
		LogLevel    string          `yaml:"log_level"`
		APIHost     string          `yaml:"api_host"`
		APIPort     int             `yaml:"api_port"`
		DataDir     string          `yaml:"data_dir"`
		StorageFormat string        `yaml:"storage_format"`
		Scheduler   SchedulerConfig `yaml:"scheduler"`
		Pipeline    PipelineConfig  `yaml:"pipeline"`
		Archival    ArchivalConfig  `yaml:"archival"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("config: parsing overlay %s: %w", path, err)
	}

	if overlay.Environment != "" {
		cfg.Environment = overlay.Environment
	}
	if overlay.Debug != nil {
		cfg.Debug = *overlay.Debug
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}
	if overlay.APIHost != "" {
		cfg.APIHost = overlay.APIHost
	}
	if overlay.APIPort != 0 {
		cfg.APIPort = overlay.APIPort
	}
	if overlay.DataDir != "" {
		cfg.DataDir = overlay.DataDir
	}
	if overlay.StorageFormat != "" {
		cfg.StorageFormat = overlay.StorageFormat
	}
	if overlay.Scheduler.TriggerHour != 0 {
		cfg.Scheduler.TriggerHour = overlay.Scheduler.TriggerHour
	}
	if overlay.Scheduler.MisfireGraceSeconds != 0 {
		cfg.Scheduler.MisfireGraceSeconds = overlay.Scheduler.MisfireGraceSeconds
	}
	if overlay.Scheduler.JobTimeoutSeconds != 0 {
		cfg.Scheduler.JobTimeoutSeconds = overlay.Scheduler.JobTimeoutSeconds
	}
	if overlay.Pipeline.ParallelForecast {
		cfg.Pipeline.ParallelForecast = true
	}
	if overlay.Archival.Enabled {
		cfg.Archival.Enabled = true
	}
	if overlay.Archival.RetentionDays != 0 {
		cfg.Archival.RetentionDays = overlay.Archival.RetentionDays
	}
	if overlay.Archival.Bucket != "" {
		cfg.Archival.Bucket = overlay.Archival.Bucket
	}
	if overlay.Archival.Region != "" {
		cfg.Archival.Region = overlay.Archival.Region
	}
	if overlay.Archival.Endpoint != "" {
		cfg.Archival.Endpoint = overlay.Archival.Endpoint
	}
	return nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: DATA_DIR is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("config: API_PORT %d out of range", c.APIPort)
	}
	if c.Scheduler.TriggerHour < 0 || c.Scheduler.TriggerHour > 23 {
		return fmt.Errorf("config: SCHEDULER_TRIGGER_HOUR %d out of [0,23]", c.Scheduler.TriggerHour)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
