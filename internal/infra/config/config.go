// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Intake    IntakeConfig    `yaml:"intake"`
	Download  DownloadConfig  `yaml:"download"`
	Cache     CacheConfig     `yaml:"cache"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// StorageConfig selects the persistent store backend.
type StorageConfig struct {
	Backend  string         `yaml:"backend" default:"file" validate:"oneof=file sqlite"`
	Settings map[string]any `yaml:"settings"`
}

// CatalogConfig selects the catalog resolution backend.
type CatalogConfig struct {
	Backend  string         `yaml:"backend" default:"http" validate:"oneof=http spotify"`
	Settings map[string]any `yaml:"settings"`
}

// IntakeConfig represents the request-intake service endpoint.
type IntakeConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// DownloadConfig represents download behavior configuration.
type DownloadConfig struct {
	Dir        string `yaml:"dir" default:"downloads"`
	TimeoutSec int    `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=600"`
}

// CacheConfig represents the ephemeral cache configuration.
type CacheConfig struct {
	TTLSec int  `yaml:"ttl_sec" default:"300" validate:"gte=1"`
	Mirror bool `yaml:"mirror"` // Mirror entries to the persistent store
}

// PlaybackConfig represents playback engine configuration.
type PlaybackConfig struct {
	PollIntervalMs     int `yaml:"poll_interval_ms" default:"100" validate:"gte=10,lte=5000"`
	RestartThresholdMs int `yaml:"restart_threshold_ms" default:"3000" validate:"gte=0"`
}

// ReconcileConfig represents the status reconciliation loop configuration.
type ReconcileConfig struct {
	IntervalSec     int `yaml:"interval_sec" default:"30" validate:"gte=5"`
	InitialDelaySec int `yaml:"initial_delay_sec" default:"3" validate:"gte=0"`
	NotifiedTTLSec  int `yaml:"notified_ttl_sec" default:"600" validate:"gte=1"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if c.Catalog.Settings == nil {
		c.Catalog.Settings = map[string]any{}
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Catalog.Settings["client_id"] = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Catalog.Settings["client_secret"] = v
	}
	if v := os.Getenv("CATALOG_API_KEY"); v != "" {
		c.Catalog.Settings["api_key"] = v
	}
	if v := os.Getenv("INTAKE_BASE_URL"); v != "" {
		c.Intake.BaseURL = v
	}
}

// DownloadTimeout returns the download timeout as a duration.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSec) * time.Second
}

// CacheTTL returns the default cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}
