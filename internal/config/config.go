// Package config loads viewer configuration from a .worldview.yaml file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name discovered relative to the
// working directory.
const DefaultFile = ".worldview.yaml"

// Config is the full viewer configuration. Zero values mean "use the
// built-in default"; flags override anything set here.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
}

// ServerConfig describes the simulator endpoint and retry policy.
type ServerConfig struct {
	URL            string   `yaml:"url"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryBaseDelay Duration `yaml:"retry_base_delay"`
}

// Duration decodes YAML duration strings like "500ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// HistoryConfig bounds the retained state.
type HistoryConfig struct {
	MaxPerSender int `yaml:"max_per_sender"`
	MaxEvents    int `yaml:"max_events"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            "ws://localhost:8000/ws",
			MaxRetries:     5,
			RetryBaseDelay: Duration(time.Second),
		},
		History: HistoryConfig{
			MaxPerSender: 500,
			MaxEvents:    500,
		},
	}
}

// Load reads and validates a config file, filling unset fields with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// applyDefaults restores built-in values for fields the file zeroed or
// omitted inside partially specified sections.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.URL == "" {
		cfg.Server.URL = def.Server.URL
	}
	if cfg.Server.MaxRetries == 0 {
		cfg.Server.MaxRetries = def.Server.MaxRetries
	}
	if cfg.Server.RetryBaseDelay == 0 {
		cfg.Server.RetryBaseDelay = def.Server.RetryBaseDelay
	}
	if cfg.History.MaxPerSender == 0 {
		cfg.History.MaxPerSender = def.History.MaxPerSender
	}
	if cfg.History.MaxEvents == 0 {
		cfg.History.MaxEvents = def.History.MaxEvents
	}
}

func validate(cfg *Config) error {
	if !strings.HasPrefix(cfg.Server.URL, "ws://") && !strings.HasPrefix(cfg.Server.URL, "wss://") {
		return fmt.Errorf("server url must be ws:// or wss://, got %q", cfg.Server.URL)
	}
	if cfg.Server.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if cfg.Server.RetryBaseDelay < 0 {
		return fmt.Errorf("retry_base_delay must not be negative")
	}
	if cfg.History.MaxPerSender < 0 || cfg.History.MaxEvents < 0 {
		return fmt.Errorf("history limits must not be negative")
	}
	return nil
}

// Discover finds the config file path.
// Priority: WORLDVIEW_CONFIG env var > .worldview.yaml in CWD > walk up
// parents. An empty return means no file was found; callers then run on
// defaults.
func Discover() (string, error) {
	if env := os.Getenv("WORLDVIEW_CONFIG"); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
		return "", fmt.Errorf("WORLDVIEW_CONFIG=%q: %w", env, os.ErrNotExist)
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, DefaultFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}
