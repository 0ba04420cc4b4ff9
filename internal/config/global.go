// Package config loads portico's global settings from ~/.portico/config.yaml
// with PORTICO_* environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the loopback port the desktop shell expects.
const DefaultPort = 2027

// GlobalConfig holds global portico settings.
type GlobalConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Registry RegistryConfig `yaml:"registry"`
	Debug    DebugConfig    `yaml:"debug"`
}

// ServerConfig holds the listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProxyConfig tunes the forwarder.
type ProxyConfig struct {
	// UpstreamTimeout bounds the wait for upstream response headers. Zero disables it.
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// TokenTimeout bounds a single token endpoint call.
	TokenTimeout time.Duration `yaml:"token_timeout"`
	// SingleFlight collapses concurrent token fetches for the same target.
	SingleFlight bool `yaml:"single_flight"`
}

// RegistryConfig locates the target registry document.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// DebugConfig controls the JSON debug log files.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// DefaultGlobalConfig returns the built-in defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: DefaultPort,
		},
		Proxy: ProxyConfig{
			UpstreamTimeout: 60 * time.Second,
			TokenTimeout:    30 * time.Second,
			SingleFlight:    true,
		},
		Registry: RegistryConfig{
			Path: filepath.Join(Dir(), "applications.json"),
		},
		Debug: DebugConfig{
			RetentionDays: 7,
		},
	}
}

// LoadGlobal reads Dir()/config.yaml and applies environment overrides.
// A missing or unparseable file leaves the defaults in place.
func LoadGlobal() (*GlobalConfig, error) {
	return Load(filepath.Join(Dir(), "config.yaml"))
}

// Load reads the config file at path and applies environment overrides.
func Load(path string) (*GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, cfg)
	}
	cfg.applyEnv()
	cfg.Registry.Path = expandHome(cfg.Registry.Path)

	return cfg, nil
}

func (c *GlobalConfig) applyEnv() {
	if v := os.Getenv("PORTICO_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORTICO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port >= 0 && port <= 65535 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PORTICO_UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Proxy.UpstreamTimeout = d
		}
	}
	if v := os.Getenv("PORTICO_TOKEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Proxy.TokenTimeout = d
		}
	}
	if v := os.Getenv("PORTICO_SINGLE_FLIGHT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Proxy.SingleFlight = b
		}
	}
	if v := os.Getenv("PORTICO_REGISTRY"); v != "" {
		c.Registry.Path = v
	}
}

// Addr returns host:port for the listener.
func (c *GlobalConfig) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// Dir returns the portico state directory: $PORTICO_HOME, else ~/.portico.
func Dir() string {
	if dir := os.Getenv("PORTICO_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".portico")
	}
	return filepath.Join(home, ".portico")
}

// DebugDir returns the directory for JSON debug logs.
func DebugDir() string {
	return filepath.Join(Dir(), "debug")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
