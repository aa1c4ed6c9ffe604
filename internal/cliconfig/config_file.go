package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Engine      string `toml:"engine"`
	Socket      string `toml:"sock"`
	Backlog     int    `toml:"backlog"`
	WaitTimeout string `toml:"wait_timeout"`
	ReportEvery *int   `toml:"report_every"`
	IOTimeout   string `toml:"io_timeout"`
	NoPin       *bool  `toml:"no_pin"`
	NoWatch     *bool  `toml:"no_watch"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.infersock/config.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".infersock", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("engine", fc.Engine, &cfg.Engine)
	s.setString("sock", fc.Socket, &cfg.Socket)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("wait-timeout", fc.WaitTimeout, &cfg.WaitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("io-timeout", fc.IOTimeout, &cfg.IOTimeout); err != nil {
		return err
	}

	s.setInt("backlog", fc.Backlog, &cfg.Backlog)
	if err := s.setCount("report-every", fc.ReportEvery, &cfg.ReportEvery); err != nil {
		return err
	}

	s.setBool("no-pin", fc.NoPin, &cfg.NoPin)
	s.setBool("no-watch", fc.NoWatch, &cfg.NoWatch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
