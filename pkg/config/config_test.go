package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Listen)
	}
	if cfg.Cache.FreshnessWindow != 5*time.Minute {
		t.Errorf("expected 5m freshness window, got %v", cfg.Cache.FreshnessWindow)
	}
	if cfg.Cleanup.SuggestionTTLHours != 24 || cfg.Cleanup.MaxSuggestionsPerRod != 50 || cfg.Cleanup.CleanupIntervalHours != 6 {
		t.Errorf("unexpected cleanup defaults: %+v", cfg.Cleanup)
	}
	if cfg.Advisor.Enabled() {
		t.Error("advisor should be disabled without an api key")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_HF_TOKEN", "hf-test-123")

	content := `
listen: ":9090"
database:
  driver: sqlite
  dsn: test.db
cache:
  freshness_window: 2m
cleanup:
  suggestion_ttl_hours: 48
  max_suggestions_per_rod: 10
  enable_logging: false
advisor:
  api_key: ${TEST_HF_TOKEN}
  requests_per_minute: 30
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Listen)
	}
	if cfg.Advisor.APIKey != "hf-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Advisor.APIKey)
	}
	if !cfg.Advisor.Enabled() {
		t.Error("expected advisor enabled")
	}
	if cfg.Cache.FreshnessWindow != 2*time.Minute {
		t.Errorf("expected 2m window, got %v", cfg.Cache.FreshnessWindow)
	}
	if cfg.Cleanup.SuggestionTTLHours != 48 {
		t.Errorf("expected ttl 48, got %v", cfg.Cleanup.SuggestionTTLHours)
	}
	if cfg.Cleanup.MaxSuggestionsPerRod != 10 {
		t.Errorf("expected cap 10, got %d", cfg.Cleanup.MaxSuggestionsPerRod)
	}
	// untouched fields keep their defaults
	if cfg.Cleanup.CleanupIntervalHours != 6 {
		t.Errorf("expected default interval 6, got %v", cfg.Cleanup.CleanupIntervalHours)
	}
	if cfg.Cleanup.EnableLogging {
		t.Error("expected logging disabled")
	}
	if cfg.Advisor.Model == "" {
		t.Error("expected default advisor model")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.DSN != "soilsense.db" {
		t.Errorf("expected default dsn, got %s", cfg.Database.DSN)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
database:
  driver: postgres
cleanup:
  cleanup_interval_hours: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("cleanup:\n  suggestion_ttl_hours: 24\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) { changed <- c })
	}()

	// Give the watcher a moment to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changed:
			// A reload can observe the file mid-write; wait for the final content.
			if c.Cleanup.SuggestionTTLHours != 48 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte("cleanup:\n  suggestion_ttl_hours: 48\n"), 0644)
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
