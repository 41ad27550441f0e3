// Package config provides configuration loading and validation for Lodestone.
// Supports YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a Lodestone shard's durability core.
type Config struct {
	Shard         ShardConfig         `yaml:"shard"`
	Translog      TranslogConfig      `yaml:"translog"`
	GC            GCConfig            `yaml:"gc"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ShardConfig struct {
	// DataDir is the shard data directory; translog files live in
	// <dataDir>/translog.
	DataDir string `yaml:"dataDir" env:"LODESTONE_DATA_DIR"`
}

type TranslogConfig struct {
	// RetentionSizeBytes caps the cumulative size of retained translog
	// files. Negative disables the limit.
	RetentionSizeBytes int64 `yaml:"retentionSizeBytes" env:"LODESTONE_TRANSLOG_RETENTION_SIZE"`

	// RetentionAgeMs caps the age of the oldest retained translog file in
	// milliseconds. Negative disables the limit.
	RetentionAgeMs int64 `yaml:"retentionAgeMs" env:"LODESTONE_TRANSLOG_RETENTION_AGE_MS"`
}

type GCConfig struct {
	// ScanIntervalMs is the interval between trim scans in milliseconds.
	ScanIntervalMs int64 `yaml:"scanIntervalMs" env:"LODESTONE_GC_SCAN_INTERVAL_MS"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"LODESTONE_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"LODESTONE_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"LODESTONE_LOG_FORMAT"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Shard: ShardConfig{
			DataDir: "/var/lib/lodestone",
		},
		Translog: TranslogConfig{
			RetentionSizeBytes: 512 * 1024 * 1024, // 512MB
			RetentionAgeMs:     12 * time.Hour.Milliseconds(),
		},
		GC: GCConfig{
			ScanIntervalMs: 60000, // 1 minute
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// Load returns the default configuration with environment variable
// overrides applied.
func Load() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a YAML file, then applies
// environment variable overrides on top.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Shard.DataDir == "" {
		return fmt.Errorf("shard.dataDir must not be empty")
	}
	if c.GC.ScanIntervalMs <= 0 {
		return fmt.Errorf("gc.scanIntervalMs must be positive, got %d", c.GC.ScanIntervalMs)
	}
	switch c.Observability.LogFormat {
	case "", "json", "text":
	default:
		return fmt.Errorf("observability.logFormat must be json or text, got %q", c.Observability.LogFormat)
	}
	return nil
}

// applyEnvOverrides replaces config values with their environment variable
// counterparts where set.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("LODESTONE_DATA_DIR"); v != "" {
		c.Shard.DataDir = v
	}
	if err := envInt64("LODESTONE_TRANSLOG_RETENTION_SIZE", &c.Translog.RetentionSizeBytes); err != nil {
		return err
	}
	if err := envInt64("LODESTONE_TRANSLOG_RETENTION_AGE_MS", &c.Translog.RetentionAgeMs); err != nil {
		return err
	}
	if err := envInt64("LODESTONE_GC_SCAN_INTERVAL_MS", &c.GC.ScanIntervalMs); err != nil {
		return err
	}
	if v := os.Getenv("LODESTONE_METRICS_ADDR"); v != "" {
		c.Observability.MetricsAddr = v
	}
	if v := os.Getenv("LODESTONE_LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("LODESTONE_LOG_FORMAT"); v != "" {
		c.Observability.LogFormat = v
	}
	return nil
}

func envInt64(name string, dst *int64) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}
