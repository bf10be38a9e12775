package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/sio"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	URL      string `yaml:"url"`
	Resource string `yaml:"resource"`
	Endpoint string `yaml:"endpoint"`
}

type ClientConfig struct {
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	HandshakeTimeout time.Duration   `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration   `yaml:"write_timeout"`
	CloseTimeout     time.Duration   `yaml:"close_timeout"`
	PrivateAcks      bool            `yaml:"private_acks"`
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when non-empty, e.g. ":9090".
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:      "ws://localhost:8080",
			Resource: kephasio.DefaultResource,
		},
		Client: ClientConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				MessagesPerSecond: 100,
				Burst:             200,
			},
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			CloseTimeout:     5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "kephasio",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the client cannot start with.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.Server.Resource != "" && !strings.HasPrefix(c.Server.Resource, "/") {
		return fmt.Errorf("server.resource %q must start with /", c.Server.Resource)
	}
	if c.Client.RateLimit.Enabled && (c.Client.RateLimit.MessagesPerSecond <= 0 || c.Client.RateLimit.Burst <= 0) {
		return fmt.Errorf("client.rate_limit needs positive messages_per_second and burst")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Logger builds the slog logger described by the log section.
func (c *Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ClientOptions translates the client and server sections into sio options.
func (c *Config) ClientOptions() []sio.Option {
	opts := []sio.Option{
		sio.WithResource(c.Server.Resource),
		sio.WithTimeouts(c.Client.HandshakeTimeout, c.Client.WriteTimeout, c.Client.CloseTimeout),
	}

	if c.Client.RateLimit.Enabled {
		opts = append(opts, sio.WithRateLimit(&sio.RateLimitConfig{
			MessagesPerSecond: rate.Limit(c.Client.RateLimit.MessagesPerSecond),
			Burst:             c.Client.RateLimit.Burst,
			Enabled:           true,
		}))
	} else {
		opts = append(opts, sio.WithRateLimit(sio.NoRateLimit()))
	}

	if c.Client.PrivateAcks {
		opts = append(opts, sio.WithPrivateAcks())
	}
	return opts
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
