// File: config/config.go
// Package config loads hioload-bus configuration.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-bus/loop"
)

// Duration decodes YAML "1s"-style strings or bare nanosecond counts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all loop and bridge configuration.
type Config struct {
	Slots          int      `yaml:"slots"`
	FdLimitPerSlot int      `yaml:"fd_limit_per_slot"`
	PollBatch      int      `yaml:"poll_batch"`
	TickInterval   Duration `yaml:"tick_interval"`
	LogLevel       string   `yaml:"log_level"`
}

// Default returns sizing suitable for small embeddings.
func Default() *Config {
	return &Config{
		Slots:          1,
		FdLimitPerSlot: 1024,
		PollBatch:      128,
		TickInterval:   Duration(time.Second),
		LogLevel:       "info",
	}
}

// Load reads a YAML file over the defaults, then applies HIOBUS_*
// environment overrides. A .env file in the working directory is
// honored when present. An empty path skips the file stage.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config read: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config parse: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HIOBUS_SLOTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIOBUS_SLOTS: %w", err)
		}
		c.Slots = n
	}
	if v := os.Getenv("HIOBUS_FD_LIMIT_PER_SLOT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIOBUS_FD_LIMIT_PER_SLOT: %w", err)
		}
		c.FdLimitPerSlot = n
	}
	if v := os.Getenv("HIOBUS_POLL_BATCH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HIOBUS_POLL_BATCH: %w", err)
		}
		c.PollBatch = n
	}
	if v := os.Getenv("HIOBUS_TICK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HIOBUS_TICK_INTERVAL: %w", err)
		}
		c.TickInterval = Duration(d)
	}
	if v := os.Getenv("HIOBUS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Slots <= 0 {
		return fmt.Errorf("slots must be positive, got %d", c.Slots)
	}
	if c.FdLimitPerSlot <= 0 {
		return fmt.Errorf("fd_limit_per_slot must be positive, got %d", c.FdLimitPerSlot)
	}
	if c.PollBatch <= 0 {
		return fmt.Errorf("poll_batch must be positive, got %d", c.PollBatch)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval.Std())
	}
	return nil
}

// Loop converts the configuration into the loop package's form.
func (c *Config) Loop() loop.Config {
	return loop.Config{
		Slots:          c.Slots,
		FdLimitPerSlot: c.FdLimitPerSlot,
		PollBatch:      c.PollBatch,
		TickInterval:   c.TickInterval.Std(),
	}
}
