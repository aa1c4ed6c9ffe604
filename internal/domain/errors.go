package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("infersock: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped daemon.
	ErrNotRunning = errors.New("infersock: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("infersock: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("infersock: invalid configuration")
)

// Setup stages reported by SetupError.
const (
	StageEngine   = "engine"
	StageSocket   = "socket"
	StageBind     = "bind"
	StageListen   = "listen"
	StageBuffers  = "buffers"
	StagePoller   = "poller"
	StageWatcher  = "watcher"
	StageEndpoint = "endpoint"
)

// SetupError aborts the daemon before it starts serving.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string { return fmt.Sprintf("setup %s: %v", e.Stage, e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }

// Setup wraps err as a SetupError for stage. A nil err stays nil.
func Setup(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &SetupError{Stage: stage, Err: err}
}

// IsSetup reports whether err is, or wraps, a SetupError.
func IsSetup(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// ComputeError reports an engine failure on a single request.
type ComputeError struct {
	Err error
}

func (e *ComputeError) Error() string { return "compute: " + e.Err.Error() }
func (e *ComputeError) Unwrap() error { return e.Err }

// AcceptError reports a failed accept on the listening endpoint.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string { return "accept: " + e.Err.Error() }
func (e *AcceptError) Unwrap() error { return e.Err }
