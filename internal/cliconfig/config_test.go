package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/infersock/internal/daemon"
	"github.com/bft-labs/infersock/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine != DefaultEngine {
		t.Errorf("Engine = %v, want %v", cfg.Engine, DefaultEngine)
	}
	if cfg.Socket != "/run/infersock.sock" {
		t.Errorf("Socket = %v, want /run/infersock.sock", cfg.Socket)
	}
	if cfg.Backlog != 64 {
		t.Errorf("Backlog = %v, want 64", cfg.Backlog)
	}
	if cfg.WaitTimeout != 500*time.Millisecond {
		t.Errorf("WaitTimeout = %v, want 500ms", cfg.WaitTimeout)
	}
	if cfg.ReportEvery != 100 {
		t.Errorf("ReportEvery = %v, want 100", cfg.ReportEvery)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantErr    bool
		wantLevel  string
		wantFormat string
	}{
		{name: "defaults", mutate: func(*Config) {}, wantLevel: "info", wantFormat: "auto"},
		{name: "missing engine", mutate: func(c *Config) { c.Engine = "" }, wantErr: true},
		{name: "missing socket", mutate: func(c *Config) { c.Socket = "" }, wantErr: true},
		{name: "zero wait timeout", mutate: func(c *Config) { c.WaitTimeout = 0 }, wantErr: true},
		{name: "negative io timeout", mutate: func(c *Config) { c.IOTimeout = -time.Second }, wantErr: true},
		{name: "negative report cadence", mutate: func(c *Config) { c.ReportEvery = -1 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{
			name:       "normalizes case and empty values",
			mutate:     func(c *Config) { c.LogLevel = "DEBUG"; c.LogFormat = "" },
			wantLevel:  "debug",
			wantFormat: "auto",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, domain.ErrInvalidConfig) {
					t.Errorf("error %v is not ErrInvalidConfig", err)
				}
				return
			}
			if cfg.LogLevel != tt.wantLevel {
				t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, tt.wantLevel)
			}
			if cfg.LogFormat != tt.wantFormat {
				t.Errorf("LogFormat = %v, want %v", cfg.LogFormat, tt.wantFormat)
			}
		})
	}
}

func TestConfig_Daemon(t *testing.T) {
	cfg := Config{
		Socket:      "/tmp/x.sock",
		Backlog:     8,
		WaitTimeout: 50 * time.Millisecond,
		ReportEvery: 10,
		IOTimeout:   time.Second,
		NoPin:       true,
	}

	got := cfg.Daemon()
	want := daemon.DefaultConfig()
	want.SocketPath = "/tmp/x.sock"
	want.Backlog = 8
	want.WaitTimeout = 50 * time.Millisecond
	want.ReportEvery = 10
	want.IOTimeout = time.Second
	want.PinBuffers = false
	want.WatchEndpoint = true

	if got != want {
		t.Errorf("Daemon() = %+v, want %+v", got, want)
	}
}
