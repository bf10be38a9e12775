package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luciancaetano/kephasio/sio"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kephasio.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadDefaults tests that an empty path returns the defaults
func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Resource != "/socket.io" {
		t.Errorf("Resource = %q", cfg.Server.Resource)
	}
	if !cfg.Client.RateLimit.Enabled || cfg.Client.RateLimit.Burst != 200 {
		t.Errorf("RateLimit = %+v", cfg.Client.RateLimit)
	}
	if cfg.Client.CloseTimeout != 5*time.Second {
		t.Errorf("CloseTimeout = %v", cfg.Client.CloseTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// TestLoadOverrides tests that file values replace only the keys they set
func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  url: ws://chat.example.com:3000
  endpoint: /chat
client:
  rate_limit:
    enabled: false
  write_timeout: 2s
  private_acks: true
log:
  level: debug
  format: json
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.URL != "ws://chat.example.com:3000" || cfg.Server.Endpoint != "/chat" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.Resource != "/socket.io" {
		t.Errorf("Resource = %q, want default kept", cfg.Server.Resource)
	}
	if cfg.Client.RateLimit.Enabled {
		t.Error("rate limit should be disabled")
	}
	if cfg.Client.WriteTimeout != 2*time.Second {
		t.Errorf("WriteTimeout = %v, want 2s", cfg.Client.WriteTimeout)
	}
	if cfg.Client.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want default 10s", cfg.Client.HandshakeTimeout)
	}
	if !cfg.Client.PrivateAcks {
		t.Error("PrivateAcks = false")
	}
	if cfg.Metrics.Addr != ":9090" || cfg.Metrics.Namespace != "kephasio" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if !cfg.Logger().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
}

// TestLoadErrors tests invalid files
func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "server: [unclosed"},
		{name: "empty url", content: "server:\n  url: \"\"\n"},
		{name: "relative resource", content: "server:\n  resource: socket.io\n"},
		{name: "bad rate limit", content: "client:\n  rate_limit:\n    enabled: true\n    burst: 0\n"},
		{name: "bad log level", content: "log:\n  level: loud\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Load() error = nil for %s", tt.name)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}

// TestClientOptions tests the translation to client options
func TestClientOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Server.Resource = "/io"
	cfg.Client.PrivateAcks = true

	c := sio.NewConfig(cfg.ClientOptions()...)
	if c.Resource != "/io" {
		t.Errorf("Resource = %q", c.Resource)
	}
	if !c.PrivateAcks {
		t.Error("PrivateAcks not applied")
	}
	if c.RateLimit == nil || c.RateLimit.Burst != 200 || !c.RateLimit.Enabled {
		t.Errorf("RateLimit = %+v", c.RateLimit)
	}
	if c.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v", c.WriteTimeout)
	}

	cfg.Client.RateLimit.Enabled = false
	c = sio.NewConfig(cfg.ClientOptions()...)
	if c.RateLimit.Enabled {
		t.Error("rate limit should be disabled")
	}
}
