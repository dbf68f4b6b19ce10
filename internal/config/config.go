package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Forecast ForecastConfig `mapstructure:"forecast"`
	Split    SplitConfig    `mapstructure:"split"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ForecastConfig holds model and run configuration
type ForecastConfig struct {
	Model          string        `mapstructure:"model"`
	DefaultHorizon int           `mapstructure:"default_horizon"`
	MaxHorizon     int           `mapstructure:"max_horizon"`
	IntervalWidth  float64       `mapstructure:"interval_width"`
	MinNonZero     int           `mapstructure:"min_nonzero"`
	Workers        int           `mapstructure:"workers"`
	FitTimeout     time.Duration `mapstructure:"fit_timeout"`
}

// SplitConfig holds proportional splitting policies
type SplitConfig struct {
	EdgeFill string `mapstructure:"edge_fill"`
	Rounding string `mapstructure:"rounding"`
}

// IngestConfig holds input decoding configuration
type IngestConfig struct {
	OnBadDate string `mapstructure:"on_bad_date"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyMB    int           `mapstructure:"max_body_mb"`
}

// StorageConfig holds run archive configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix prefixes every environment override, e.g.
// ATTRITIONCAST_FORECAST_MODEL overrides forecast.model.
const EnvPrefix = "ATTRITIONCAST"

// Load reads configuration from file and environment variables. An empty
// path skips the file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Forecast defaults
	v.SetDefault("forecast.model", "additive")
	v.SetDefault("forecast.default_horizon", 12)
	v.SetDefault("forecast.max_horizon", 24)
	v.SetDefault("forecast.interval_width", 0.80)
	v.SetDefault("forecast.min_nonzero", 2)
	v.SetDefault("forecast.workers", 4)
	v.SetDefault("forecast.fit_timeout", "30s")

	// Split defaults
	v.SetDefault("split.edge_fill", "zero")
	v.SetDefault("split.rounding", "independent")

	// Ingest defaults
	v.SetDefault("ingest.on_bad_date", "abort")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "2m")
	v.SetDefault("server.max_body_mb", 10)

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/attritioncast.db")
	v.SetDefault("storage.max_runs", 500)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Forecast config
	if c.Forecast.Model == "" {
		return fmt.Errorf("forecast.model is required")
	}
	if c.Forecast.MaxHorizon < 1 || c.Forecast.MaxHorizon > 24 {
		return fmt.Errorf("forecast.max_horizon must be between 1 and 24")
	}
	if c.Forecast.DefaultHorizon < 1 || c.Forecast.DefaultHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast.default_horizon must be between 1 and forecast.max_horizon")
	}
	if c.Forecast.IntervalWidth <= 0.0 || c.Forecast.IntervalWidth >= 1.0 {
		return fmt.Errorf("forecast.interval_width must be between 0.0 and 1.0 exclusive")
	}
	if c.Forecast.MinNonZero < 1 {
		return fmt.Errorf("forecast.min_nonzero must be at least 1")
	}
	if c.Forecast.Workers < 1 {
		return fmt.Errorf("forecast.workers must be at least 1")
	}
	if c.Forecast.FitTimeout < 0 {
		return fmt.Errorf("forecast.fit_timeout must not be negative")
	}

	// Validate Split config
	validEdge := map[string]bool{"zero": true, "nearest": true}
	if !validEdge[c.Split.EdgeFill] {
		return fmt.Errorf("split.edge_fill must be one of: zero, nearest")
	}
	validRounding := map[string]bool{"independent": true, "largest_remainder": true}
	if !validRounding[c.Split.Rounding] {
		return fmt.Errorf("split.rounding must be one of: independent, largest_remainder")
	}

	// Validate Ingest config
	validBadDate := map[string]bool{"abort": true, "drop": true}
	if !validBadDate[c.Ingest.OnBadDate] {
		return fmt.Errorf("ingest.on_bad_date must be one of: abort, drop")
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxBodyMB < 1 {
		return fmt.Errorf("server.max_body_mb must be at least 1")
	}

	// Validate Storage config
	if c.Storage.Enabled {
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required when storage is enabled")
		}
		if c.Storage.MaxRuns < 1 {
			return fmt.Errorf("storage.max_runs must be at least 1")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// GetForecastConfig returns the Forecast configuration
func (c *Config) GetForecastConfig() ForecastConfig {
	return c.Forecast
}

// GetSplitConfig returns the Split configuration
func (c *Config) GetSplitConfig() SplitConfig {
	return c.Split
}

// GetServerConfig returns the Server configuration
func (c *Config) GetServerConfig() ServerConfig {
	return c.Server
}

// GetStorageConfig returns the Storage configuration
func (c *Config) GetStorageConfig() StorageConfig {
	return c.Storage
}

// GetLoggingConfig returns the Logging configuration
func (c *Config) GetLoggingConfig() LoggingConfig {
	return c.Logging
}
