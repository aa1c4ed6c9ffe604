package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/bft-labs/infersock/internal/domain"
	"github.com/bft-labs/infersock/internal/stats"
)

// Defaults for Config.
const (
	DefaultSocketPath  = "/run/infersock.sock"
	DefaultBacklog     = 64
	DefaultSocketMode  = os.FileMode(0o666)
	DefaultWaitTimeout = 500 * time.Millisecond
	DefaultMaxEvents   = 16
)

// Config holds daemon settings.
type Config struct {
	// SocketPath is the filesystem path of the listening endpoint.
	SocketPath string

	// Backlog is the listen(2) queue length.
	Backlog int

	// SocketMode is applied to the socket file so local clients can connect.
	SocketMode os.FileMode

	// WaitTimeout bounds each readiness wait and therefore how long a stop
	// request can go unnoticed on an idle daemon.
	WaitTimeout time.Duration

	// MaxEvents is the number of readiness events drained per wait.
	MaxEvents int

	// ReportEvery emits a metrics line every N completed requests; 0 disables.
	ReportEvery uint64

	// IOTimeout bounds each blocking read or write on a client socket.
	// Zero blocks indefinitely.
	IOTimeout time.Duration

	// PinBuffers locks the host buffer pair in memory.
	PinBuffers bool

	// WatchEndpoint re-creates the socket file if it is deleted while serving.
	WatchEndpoint bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		SocketPath:    DefaultSocketPath,
		Backlog:       DefaultBacklog,
		SocketMode:    DefaultSocketMode,
		WaitTimeout:   DefaultWaitTimeout,
		MaxEvents:     DefaultMaxEvents,
		ReportEvery:   stats.DefaultReportEvery,
		PinBuffers:    true,
		WatchEndpoint: true,
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath
	}
	if c.Backlog <= 0 {
		c.Backlog = DefaultBacklog
	}
	if c.SocketMode == 0 {
		c.SocketMode = DefaultSocketMode
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// sun_path is 108 bytes including the terminating NUL.
	if len(c.SocketPath) > 107 {
		return fmt.Errorf("%w: socket path longer than 107 bytes: %s", domain.ErrInvalidConfig, c.SocketPath)
	}
	if c.WaitTimeout < time.Millisecond {
		return fmt.Errorf("%w: wait timeout must be at least 1ms", domain.ErrInvalidConfig)
	}
	if c.IOTimeout < 0 {
		return fmt.Errorf("%w: io timeout must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}
