package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"devicemonitor/internal/logger"
)

// Config represents configuration data for the monitoring service.
type Config struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	RegistryPath    string        `yaml:"registry_path"`
	LogPath         string        `yaml:"log_path"`
	Probe           Probe         `yaml:"probe"`
	HTTP            HTTP          `yaml:"http"`
	Logging         logger.Config `yaml:"logging"`
}

// Probe tunes the reachability probe.
type Probe struct {
	TimeoutMS    int `yaml:"timeout_ms"`
	FallbackPort int `yaml:"fallback_port"`
	Concurrency  int `yaml:"concurrency"`
}

// HTTP configures the optional status API.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		IntervalSeconds: 300,
		RegistryPath:    "device_data.json",
		LogPath:         "availability_data.csv",
		Probe: Probe{
			TimeoutMS:    2000,
			FallbackPort: 80,
			Concurrency:  8,
		},
		Logging: logger.DefaultConfig(),
	}
}

// Interval returns the pause between monitoring cycles.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ProbeTimeout returns the per-device probe deadline.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Probe.TimeoutMS) * time.Millisecond
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	defaults := DefaultConfig()
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = defaults.IntervalSeconds
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = defaults.RegistryPath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaults.LogPath
	}
	if cfg.Probe.TimeoutMS <= 0 {
		cfg.Probe.TimeoutMS = defaults.Probe.TimeoutMS
	}
	if cfg.Probe.FallbackPort <= 0 || cfg.Probe.FallbackPort > 65535 {
		cfg.Probe.FallbackPort = defaults.Probe.FallbackPort
	}
	if cfg.Probe.Concurrency < 0 {
		return Config{}, fmt.Errorf("probe concurrency must not be negative, got %d", cfg.Probe.Concurrency)
	}
	if cfg.Probe.Concurrency == 0 {
		cfg.Probe.Concurrency = defaults.Probe.Concurrency
	}
	if cfg.RegistryPath == cfg.LogPath {
		return Config{}, errors.New("registry_path and log_path must differ")
	}
	return cfg, nil
}
