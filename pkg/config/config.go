package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/soilsense/soilsense/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all soilsense configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Advisor  AdvisorConfig  `yaml:"advisor"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the suggestion store backend.
// Driver is "sqlite" (default) or "mysql".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CacheConfig controls suggestion lookups.
type CacheConfig struct {
	FreshnessWindow  time.Duration `yaml:"freshness_window"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout"`
	DefaultPlantType string        `yaml:"default_plant_type"`
}

// CleanupConfig is the retention policy plus whether the timer starts with the server.
type CleanupConfig struct {
	models.CleanupConfig `yaml:",inline"`
	AutoStart            bool `yaml:"auto_start"`
}

// AdvisorConfig defines the LLM advisory backend.
// The backend is used only when APIKey is set; otherwise suggestions are rule based.
type AdvisorConfig struct {
	Name              string        `yaml:"name"`
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// Enabled reports whether the LLM backend should be used.
func (a AdvisorConfig) Enabled() bool {
	return a.APIKey != ""
}

// MonitorConfig sizes the in-process event log.
type MonitorConfig struct {
	MaxEvents int `yaml:"max_events"`
}

// LogConfig controls the zap logger and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "soilsense.db",
		},
		Cache: CacheConfig{
			FreshnessWindow:  5 * time.Minute,
			GenerateTimeout:  30 * time.Second,
			DefaultPlantType: "Unknown",
		},
		Cleanup: CleanupConfig{
			CleanupConfig: DefaultCleanup(),
			AutoStart:     true,
		},
		Advisor: AdvisorConfig{
			Name:        "deepseek",
			URL:         "https://router.huggingface.co/v1",
			Model:       "deepseek-ai/DeepSeek-V3.1-Terminus:novita",
			Temperature: 0.3,
			MaxTokens:   400,
			Timeout:     20 * time.Second,
		},
		Monitor: MonitorConfig{
			MaxEvents: 1000,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DefaultCleanup returns the default retention policy.
func DefaultCleanup() models.CleanupConfig {
	return models.CleanupConfig{
		SuggestionTTLHours:   24,
		MaxSuggestionsPerRod: 50,
		CleanupIntervalHours: 6,
		EnableLogging:        true,
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the config for values the services cannot run with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q: must be sqlite or mysql", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if c.Cache.FreshnessWindow <= 0 {
		errs = append(errs, "cache.freshness_window must be positive")
	}
	if c.Cache.GenerateTimeout < 0 {
		errs = append(errs, "cache.generate_timeout must not be negative")
	}
	if c.Cleanup.SuggestionTTLHours < 0 {
		errs = append(errs, "cleanup.suggestion_ttl_hours must not be negative")
	}
	if c.Cleanup.MaxSuggestionsPerRod < 0 {
		errs = append(errs, "cleanup.max_suggestions_per_rod must not be negative")
	}
	if c.Cleanup.CleanupIntervalHours <= 0 {
		errs = append(errs, "cleanup.cleanup_interval_hours must be positive")
	}
	if c.Advisor.Enabled() && c.Advisor.URL == "" {
		errs = append(errs, "advisor.url is required when advisor.api_key is set")
	}
	if c.Advisor.RequestsPerMinute < 0 {
		errs = append(errs, "advisor.requests_per_minute must not be negative")
	}
	if c.Monitor.MaxEvents <= 0 {
		errs = append(errs, "monitor.max_events must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
