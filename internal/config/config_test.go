package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Channel.Transport != "mock" {
		t.Fatalf("expected mock transport by default, got %q", cfg.Channel.Transport)
	}
	if cfg.Channel.ConnectTimeout != 10000 {
		t.Fatalf("expected 10s connect timeout, got %d", cfg.Channel.ConnectTimeout)
	}
	if cfg.Defaults.RolesPerson1 != "Interviewer" || cfg.Defaults.RolesPerson2 != "Subject matter expert" {
		t.Fatalf("unexpected default roles: %q / %q", cfg.Defaults.RolesPerson1, cfg.Defaults.RolesPerson2)
	}
	if cfg.NeedsBus() {
		t.Fatal("mock transport without backend should not need the bus")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podcast.yaml")
	data := []byte(`channel:
  transport: websocket
  url: ws://generator.internal/generate
  connect_timeout_ms: 2500
defaults:
  tts_model: edge
  creativity: 0.4
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channel.URL != "ws://generator.internal/generate" {
		t.Fatalf("unexpected url %q", cfg.Channel.URL)
	}
	if cfg.Channel.ConnectTimeout != 2500 {
		t.Fatalf("unexpected timeout %d", cfg.Channel.ConnectTimeout)
	}
	if cfg.Defaults.TTSModel != "edge" || cfg.Defaults.Creativity != 0.4 {
		t.Fatalf("unexpected defaults %+v", cfg.Defaults)
	}
	if len(cfg.Defaults.ConversationStyles) != 3 {
		t.Fatalf("expected unspecified defaults to survive, got %v", cfg.Defaults.ConversationStyles)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PODCAST_CHANNEL_TRANSPORT", "nats")
	t.Setenv("PODCAST_CHANNEL_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("PODCAST_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PODCAST_BUS_EMBEDDED", "false")
	t.Setenv("PODCAST_BUS_USERNAME", "alice")
	t.Setenv("PODCAST_BUS_PASSWORD", "secret")
	t.Setenv("PODCAST_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("PODCAST_EVENT_STORE_MAX_SESSIONS", "123")
	t.Setenv("PODCAST_DEFAULTS_CREATIVITY", "0.25")
	t.Setenv("PODCAST_CREDENTIALS_ENV_FILE", ".env.local")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Channel.Transport != "nats" {
		t.Fatalf("expected transport override, got %q", cfg.Channel.Transport)
	}
	if cfg.Channel.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Channel.ConnectTimeout)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Embedded {
		t.Fatal("expected embedded override false")
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.MaxSessions != 123 {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.Defaults.Creativity != 0.25 {
		t.Fatalf("expected creativity override, got %v", cfg.Defaults.Creativity)
	}
	if cfg.Credentials.EnvFile != ".env.local" {
		t.Fatalf("expected env file override, got %q", cfg.Credentials.EnvFile)
	}
	if !cfg.NeedsBus() {
		t.Fatal("nats transport should need the bus")
	}
}

func TestLoadRejectsNaNCreativityOverride(t *testing.T) {
	t.Setenv("PODCAST_DEFAULTS_CREATIVITY", "NaN")
	if _, err := Load(""); err == nil {
		t.Fatal("expected NaN creativity to fail validation")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown transport":  func(c *Config) { c.Channel.Transport = "carrier-pigeon" },
		"exec without cmd":   func(c *Config) { c.Channel.Transport = "exec"; c.Channel.Command = "" },
		"zero timeout":       func(c *Config) { c.Channel.ConnectTimeout = 0 },
		"creativity too big": func(c *Config) { c.Defaults.Creativity = 1.5 },
		"creativity NaN":     func(c *Config) { c.Defaults.Creativity = math.NaN() },
		"unknown engine":     func(c *Config) { c.Defaults.TTSModel = "espeak" },
		"bad retention":      func(c *Config) { c.EventStore.RetentionMode = "forever" },
		"bad log level":      func(c *Config) { c.Telemetry.LogLevel = "chatty" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
