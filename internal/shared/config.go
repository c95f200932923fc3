package shared

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Queue      QueueConfig      `toml:"queue"`
	Downloader DownloaderConfig `toml:"downloader"`
	Sessions   SessionsConfig   `toml:"sessions"`
	Metadata   MetadataConfig   `toml:"metadata"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	CORSOrigin string   `toml:"cors_origin"`
	RateLimit  float64  `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst  int      `toml:"rate_burst"`
	Shutdown   Duration `toml:"shutdown_timeout"`
}

// Addr returns host:port for listening.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// BaseURL returns the URL clients use to reach the server.
func (s ServerConfig) BaseURL() string {
	return "http://" + s.Addr()
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// QueueConfig controls admission, retries and worker timeouts.
type QueueConfig struct {
	Concurrency      int      `toml:"concurrency"`
	MaxRetries       int      `toml:"max_retries"`
	DefaultPriority  int      `toml:"default_priority"`
	BackoffBase      Duration `toml:"backoff_base"`
	BackoffMax       Duration `toml:"backoff_max"`
	Watchdog         Duration `toml:"watchdog"`
	KillGrace        Duration `toml:"kill_grace"`
	ProgressInterval Duration `toml:"progress_interval"`
}

// DownloaderConfig describes the external downloader executable.
type DownloaderConfig struct {
	Binary    string   `toml:"binary"`
	OutputDir string   `toml:"output_dir"`
	ExtraArgs []string `toml:"extra_args"`
}

type SessionsConfig struct {
	SecretKey    string   `toml:"secret_key"`
	LoginBrowser string   `toml:"login_browser"`
	SessionTTL   Duration `toml:"session_ttl"`
}

type MetadataConfig struct {
	Enabled   bool `toml:"enabled"`
	CacheSize int  `toml:"cache_size"`
}

// Duration is a [time.Duration] read from TOML strings like "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, string(text))
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks value ranges that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	switch {
	case c.Queue.Concurrency < 1:
		return fmt.Errorf("%w: queue.concurrency must be at least 1", ErrInvalidConfig)
	case c.Queue.MaxRetries < 0:
		return fmt.Errorf("%w: queue.max_retries must not be negative", ErrInvalidConfig)
	case c.Queue.BackoffBase.Duration <= 0:
		return fmt.Errorf("%w: queue.backoff_base must be positive", ErrInvalidConfig)
	case c.Queue.Watchdog.Duration <= 0:
		return fmt.Errorf("%w: queue.watchdog must be positive", ErrInvalidConfig)
	case c.Downloader.Binary == "":
		return fmt.Errorf("%w: downloader.binary is required", ErrInvalidConfig)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	case c.Server.RateLimit < 0 || c.Server.RateBurst < 0:
		return fmt.Errorf("%w: server.rate_limit and server.rate_burst must not be negative", ErrInvalidConfig)
	}

	if c.Sessions.SecretKey != "" {
		key, err := hex.DecodeString(c.Sessions.SecretKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("%w: sessions.secret_key must be 64 hex characters", ErrInvalidConfig)
		}
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadOrDefault(path string) (*Config, error) {
	config, err := LoadConfig(path)
	if err == nil {
		return config, nil
	}
	if errors.Is(err, ErrMissingConfig) {
		return DefaultConfig(), nil
	}
	return nil, err
}
