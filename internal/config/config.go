// Package config holds the host daemon configuration: where the gateway
// listens and where blob snapshots live. Slack credentials and the channel
// watch-list are not host config — they are persisted by internal/store as
// part of the Slack client state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Config is the root configuration for the waigaya daemon.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	DataDir string        `json:"data_dir"`
}

// GatewayConfig configures the local WebSocket gateway the UI connects to.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // empty = allow all (dev mode)
	RateLimitRPS   float64  `json:"rate_limit_rps,omitempty"`  // per-client method calls/sec, 0 = disabled
}

// Default returns a Config with sensible defaults. The gateway binds to
// loopback only; this is a desktop companion, not a network service.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "127.0.0.1",
			Port:         18850,
			RateLimitRPS: 20,
		},
		DataDir: "~/.waigaya",
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.expandDataDir()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.expandDataDir()
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WAIGAYA_HOST"); v != "" {
		c.Gateway.Host = v
	}
	if v := os.Getenv("WAIGAYA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("WAIGAYA_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("WAIGAYA_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}
}

// expandDataDir resolves a leading "~/" against the user home directory.
func (c *Config) expandDataDir() error {
	if !strings.HasPrefix(c.DataDir, "~/") && c.DataDir != "~" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}
	c.DataDir = filepath.Join(home, strings.TrimPrefix(c.DataDir, "~/"))
	return nil
}

// Addr returns the gateway listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}
