package engine

import "errors"

var (
	// ErrUnknownBackend is returned by Load for an unregistered backend name.
	ErrUnknownBackend = errors.New("engine: unknown backend")

	// ErrBufferSize is returned by Infer when a buffer does not match the
	// declared binding size.
	ErrBufferSize = errors.New("engine: buffer size mismatch")

	// ErrReentrant is returned by a guarded engine when Infer is entered while
	// another call is in flight.
	ErrReentrant = errors.New("engine: concurrent infer")

	// ErrClosed is returned by Infer after Close.
	ErrClosed = errors.New("engine: closed")
)

// Engine is a loaded model bound to a device.
type Engine interface {
	// InputSize is the exact input frame length in bytes.
	InputSize() int

	// OutputSize is the exact output frame length in bytes.
	OutputSize() int

	// Infer runs the model synchronously on in and writes the result to out.
	// It must not be called concurrently. A failed call leaves the engine
	// usable for the next one.
	Infer(in, out []byte) error

	// Close releases device resources.
	Close() error
}

func checkBuffers(e Engine, in, out []byte) error {
	if len(in) != e.InputSize() || len(out) != e.OutputSize() {
		return ErrBufferSize
	}
	return nil
}
