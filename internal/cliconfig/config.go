package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/infersock/internal/daemon"
	"github.com/bft-labs/infersock/internal/domain"
)

// DefaultEngine is the manifest loaded when no engine is given.
const DefaultEngine = "model/resnet50_fp32.toml"

// Config holds CLI configuration for infersockd.
type Config struct {
	Engine string
	Socket string

	Backlog     int
	WaitTimeout time.Duration
	ReportEvery int
	IOTimeout   time.Duration

	NoPin   bool
	NoWatch bool

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Engine:      DefaultEngine,
		Socket:      daemon.DefaultSocketPath,
		Backlog:     daemon.DefaultBacklog,
		WaitTimeout: daemon.DefaultWaitTimeout,
		ReportEvery: 100,
		LogLevel:    "info",
		LogFormat:   "auto",
	}
}

// Validate checks the configuration for errors and normalizes log settings.
func (c *Config) Validate() error {
	if c.Engine == "" {
		return fmt.Errorf("%w: engine is required", domain.ErrInvalidConfig)
	}
	if c.Socket == "" {
		return fmt.Errorf("%w: sock is required", domain.ErrInvalidConfig)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("%w: wait timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.IOTimeout < 0 {
		return fmt.Errorf("%w: io timeout must not be negative", domain.ErrInvalidConfig)
	}
	if c.ReportEvery < 0 {
		return fmt.Errorf("%w: report-every must not be negative", domain.ErrInvalidConfig)
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log level: %v", domain.ErrInvalidConfig, err)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "":
		c.LogFormat = "auto"
	case "auto", "console", "json":
	default:
		return fmt.Errorf("%w: log format %q (want auto, console or json)", domain.ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// Daemon converts the CLI configuration into daemon settings.
func (c Config) Daemon() daemon.Config {
	cfg := daemon.DefaultConfig()
	cfg.SocketPath = c.Socket
	cfg.Backlog = c.Backlog
	cfg.WaitTimeout = c.WaitTimeout
	cfg.ReportEvery = uint64(c.ReportEvery)
	cfg.IOTimeout = c.IOTimeout
	cfg.PinBuffers = !c.NoPin
	cfg.WatchEndpoint = !c.NoWatch
	return cfg
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setCount sets a non-negative count from a pointer if not nil and flag not
// changed. Zero is kept.
func (s *configSetter) setCount(flag string, value *int, dst *int) error {
	if value == nil || s.changed[flag] {
		return nil
	}
	if *value < 0 {
		return fmt.Errorf("%s must not be negative, got %d", flag, *value)
	}
	*dst = *value
	return nil
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a positive int from an environment string.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setCountFromString parses a non-negative int from an environment string.
func (s *configSetter) setCountFromString(flag, value string, dst *int) error {
	if value == "" {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	return s.setCount(flag, &i, dst)
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
