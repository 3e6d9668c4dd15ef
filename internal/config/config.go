package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Reconnect policy names accepted in reconnect_policy.
const (
	PolicyFixed       = "fixed"
	PolicyExponential = "exponential"
)

// Config represents the global ~/.momento/config.toml.
type Config struct {
	DefaultSession  string        `toml:"default_session"`
	ServerURL       string        `toml:"server_url"`
	ChatWSPath      string        `toml:"chat_ws_path"`
	SyncInterval    time.Duration `toml:"sync_interval"`
	ReconnectPolicy string        `toml:"reconnect_policy"`
	ReconnectDelay  time.Duration `toml:"reconnect_delay"`
	ReconnectMax    time.Duration `toml:"reconnect_max"`
	CacheWeeks      int           `toml:"cache_weeks"`
	LogLevel        string        `toml:"log_level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultSession:  "main",
		ServerURL:       "http://localhost:8000",
		ChatWSPath:      "/chat/ws",
		SyncInterval:    30 * time.Second,
		ReconnectPolicy: PolicyFixed,
		ReconnectDelay:  3 * time.Second,
		ReconnectMax:    time.Minute,
		CacheWeeks:      4,
		LogLevel:        "info",
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads config from path and fills unset fields with defaults.
// A missing file is not an error.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.fill(Default())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fill(d *Config) {
	if c.DefaultSession == "" {
		c.DefaultSession = d.DefaultSession
	}
	if c.ServerURL == "" {
		c.ServerURL = d.ServerURL
	}
	if c.ChatWSPath == "" {
		c.ChatWSPath = d.ChatWSPath
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.ReconnectPolicy == "" {
		c.ReconnectPolicy = d.ReconnectPolicy
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = d.ReconnectMax
	}
	if c.CacheWeeks <= 0 {
		c.CacheWeeks = d.CacheWeeks
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.ReconnectPolicy {
	case PolicyFixed, PolicyExponential:
	default:
		return fmt.Errorf("invalid reconnect_policy %q: want %q or %q", c.ReconnectPolicy, PolicyFixed, PolicyExponential)
	}
	if c.ReconnectMax < c.ReconnectDelay {
		return fmt.Errorf("reconnect_max (%s) is shorter than reconnect_delay (%s)", c.ReconnectMax, c.ReconnectDelay)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
