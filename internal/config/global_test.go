package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadGlobalConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PORTICO_HOME", home)

	writeConfig(t, home, `
server:
  port: 9000
proxy:
  upstream_timeout: 5s
  token_timeout: 2s
  single_flight: false
registry:
  path: /tmp/targets.json
debug:
  retention_days: 3
`)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Proxy.UpstreamTimeout != 5*time.Second {
		t.Errorf("Proxy.UpstreamTimeout = %v, want 5s", cfg.Proxy.UpstreamTimeout)
	}
	if cfg.Proxy.TokenTimeout != 2*time.Second {
		t.Errorf("Proxy.TokenTimeout = %v, want 2s", cfg.Proxy.TokenTimeout)
	}
	if cfg.Proxy.SingleFlight {
		t.Error("Proxy.SingleFlight = true, want false")
	}
	if cfg.Registry.Path != "/tmp/targets.json" {
		t.Errorf("Registry.Path = %q", cfg.Registry.Path)
	}
	if cfg.Debug.RetentionDays != 3 {
		t.Errorf("Debug.RetentionDays = %d, want 3", cfg.Debug.RetentionDays)
	}
}

func TestLoadGlobalConfigDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PORTICO_HOME", home)

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:2027" {
		t.Errorf("Addr() = %q, want 127.0.0.1:2027", cfg.Addr())
	}
	if !cfg.Proxy.SingleFlight {
		t.Error("Proxy.SingleFlight should default to true")
	}
	if cfg.Proxy.UpstreamTimeout != 60*time.Second || cfg.Proxy.TokenTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v, want 60s/30s", cfg.Proxy.UpstreamTimeout, cfg.Proxy.TokenTimeout)
	}
	if want := filepath.Join(home, "applications.json"); cfg.Registry.Path != want {
		t.Errorf("Registry.Path = %q, want %q", cfg.Registry.Path, want)
	}
}

func TestLoadGlobalConfigInvalidYAMLKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PORTICO_HOME", home)
	writeConfig(t, home, "server: [not a map")

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
}

func TestLoadGlobalConfigEnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PORTICO_HOME", home)
	writeConfig(t, home, "server:\n  port: 9000\n")

	t.Setenv("PORTICO_HOST", "0.0.0.0")
	t.Setenv("PORTICO_PORT", "7000")
	t.Setenv("PORTICO_UPSTREAM_TIMEOUT", "0s")
	t.Setenv("PORTICO_TOKEN_TIMEOUT", "bogus")
	t.Setenv("PORTICO_SINGLE_FLIGHT", "false")
	t.Setenv("PORTICO_REGISTRY", "/srv/targets.json")

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:7000" {
		t.Errorf("Addr() = %q, want 0.0.0.0:7000", cfg.Addr())
	}
	if cfg.Proxy.UpstreamTimeout != 0 {
		t.Errorf("UpstreamTimeout = %v, want 0 from env", cfg.Proxy.UpstreamTimeout)
	}
	if cfg.Proxy.TokenTimeout != 30*time.Second {
		t.Errorf("TokenTimeout = %v, invalid env should be ignored", cfg.Proxy.TokenTimeout)
	}
	if cfg.Proxy.SingleFlight {
		t.Error("SingleFlight should be disabled from env")
	}
	if cfg.Registry.Path != "/srv/targets.json" {
		t.Errorf("Registry.Path = %q", cfg.Registry.Path)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandHome("~/x/applications.json"); got != filepath.Join(home, "x", "applications.json") {
		t.Errorf("expandHome = %q", got)
	}
	if got := expandHome("/abs/path"); got != "/abs/path" {
		t.Errorf("expandHome(/abs/path) = %q", got)
	}
}
