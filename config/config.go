// Package config loads the service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// BACKDROP_* environment variables. Command-line flags are applied on top by
// the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "BACKDROP_"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBBolt    = "bbolt"
	BackendPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Segmentation SegmentationConfig `koanf:"segmentation"`
	Session      SessionConfig      `koanf:"session"`
	Operator     OperatorConfig     `koanf:"operator"`
	Progress     ProgressConfig     `koanf:"progress"`
	Log          LogConfig          `koanf:"log"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `koanf:"tls_cert"`
	TLSKey  string `koanf:"tls_key"`
	// SelfSigned serves HTTPS with a generated certificate when no
	// certificate files are configured.
	SelfSigned bool `koanf:"self_signed"`
	// RateLimit is the number of requests per minute allowed per client IP.
	RateLimit   int           `koanf:"rate_limit"`
	MaxUpload   int64         `koanf:"max_upload"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For headers are honored.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

type StorageConfig struct {
	Backend     string `koanf:"backend"`
	DataDir     string `koanf:"data_dir"`
	PostgresDSN string `koanf:"postgres_dsn"`
}

type SegmentationConfig struct {
	URL                string        `koanf:"url"`
	Timeout            time.Duration `koanf:"timeout"`
	MaxConcurrent      int64         `koanf:"max_concurrent"`
	BreakerFailures    uint32        `koanf:"breaker_failures"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout"`
}

type SessionConfig struct {
	// IdleTimeout discards sessions untouched for this long. Zero keeps them
	// until the process exits.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

type OperatorConfig struct {
	UserID string `koanf:"user_id"`
	// Token, when set, must also be presented as a Bearer token.
	Token string `koanf:"token"`
}

type ProgressConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	QueueSize  int    `koanf:"queue_size"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8443,
			RateLimit:   120,
			MaxUpload:   20 << 20,
			ReadTimeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: BackendBBolt,
			DataDir: "./data",
		},
		Segmentation: SegmentationConfig{
			URL:                "http://127.0.0.1:7000",
			Timeout:            60 * time.Second,
			MaxConcurrent:      4,
			BreakerFailures:    5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			IdleTimeout: time.Hour,
		},
		Progress: ProgressConfig{
			QueueSize: 256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, the YAML file at path (if path is
// non-empty) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envToKey maps BACKDROP_SEGMENTATION_MAX_CONCURRENT to
// segmentation.max_concurrent.
func envToKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls_cert and server.tls_key must be set together"))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBBolt:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the bbolt backend"))
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, bbolt, postgres", c.Storage.Backend))
	}
	if u, err := url.Parse(c.Segmentation.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("segmentation.url %q is not an absolute URL", c.Segmentation.URL))
	}
	if c.Segmentation.MaxConcurrent < 1 {
		errs = append(errs, errors.New("segmentation.max_concurrent must be at least 1"))
	}
	if c.Session.IdleTimeout < 0 {
		errs = append(errs, errors.New("session.idle_timeout must not be negative"))
	}
	if c.Progress.WebhookURL != "" {
		if u, err := url.Parse(c.Progress.WebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("progress.webhook_url %q is not an absolute URL", c.Progress.WebhookURL))
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger() *slog.Logger {
	level, err := ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
