package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./mediaq.db" {
			t.Errorf("expected database path ./mediaq.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 7878 {
			t.Errorf("expected server port 7878, got %d", config.Server.Port)
		}
		if config.Queue.Concurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", config.Queue.Concurrency)
		}
		if config.Queue.MaxRetries != 3 {
			t.Errorf("expected max retries 3, got %d", config.Queue.MaxRetries)
		}
		if config.Queue.BackoffBase.Duration != 5*time.Second {
			t.Errorf("expected backoff base 5s, got %v", config.Queue.BackoffBase)
		}
		if config.Downloader.Binary != "yt-dlp" {
			t.Errorf("expected downloader binary yt-dlp, got %s", config.Downloader.Binary)
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}
		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}
		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[queue]
concurrency = 4
watchdog = "30s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}
		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}
		if config.Queue.Concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", config.Queue.Concurrency)
		}
		if config.Queue.Watchdog.Duration != 30*time.Second {
			t.Errorf("expected watchdog 30s, got %v", config.Queue.Watchdog)
		}
		if config.Queue.MaxRetries != 3 {
			t.Errorf("unset keys should keep defaults, got max_retries %d", config.Queue.MaxRetries)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
		if !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}

		config, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
		if err != nil || config == nil {
			t.Fatalf("LoadOrDefault should fall back to defaults, got %v", err)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name   string
			mutate func(*Config)
		}{
			{name: "zero concurrency", mutate: func(c *Config) { c.Queue.Concurrency = 0 }},
			{name: "negative retries", mutate: func(c *Config) { c.Queue.MaxRetries = -1 }},
			{name: "empty binary", mutate: func(c *Config) { c.Downloader.Binary = "" }},
			{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }},
			{name: "negative rate limit", mutate: func(c *Config) { c.Server.RateLimit = -1 }},
			{name: "short key", mutate: func(c *Config) { c.Sessions.SecretKey = "abcd" }},
			{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
			})
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[queue]\nbackoff_base = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})
}
