package daemon

import (
	"github.com/bft-labs/infersock/internal/stats"
	"github.com/bft-labs/infersock/pkg/log"
)

// Option configures optional behavior of a Daemon.
type Option func(*options)

type options struct {
	logger  log.Logger
	tracker *stats.Tracker
	handler EventHandler
}

// EventHandler receives daemon events. Calls are made synchronously from the
// event loop goroutine and must not block.
type EventHandler interface {
	OnStateChange(previous, current State, reason string)
	OnReport(s stats.Snapshot)
}

// WithLogger sets the logger. Without it the daemon is silent.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracker supplies the latency tracker. Without it the daemon builds one
// from Config.ReportEvery.
func WithTracker(t *stats.Tracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WithEventHandler registers a handler for lifecycle and metrics events.
func WithEventHandler(h EventHandler) Option {
	return func(o *options) {
		o.handler = h
	}
}
