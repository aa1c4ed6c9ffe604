package engine

import "sync/atomic"

// Guarded wraps an Engine and fails fast if Infer is ever entered while a
// previous call is still running.
type Guarded struct {
	Engine
	busy  atomic.Bool
	calls atomic.Uint64
}

// Guard wraps e.
func Guard(e Engine) *Guarded {
	return &Guarded{Engine: e}
}

// Infer forwards to the wrapped engine unless another call is in flight.
func (g *Guarded) Infer(in, out []byte) error {
	if !g.busy.CompareAndSwap(false, true) {
		return ErrReentrant
	}
	defer g.busy.Store(false)
	g.calls.Add(1)
	return g.Engine.Infer(in, out)
}

// Calls returns the number of Infer calls admitted so far.
func (g *Guarded) Calls() uint64 {
	return g.calls.Load()
}
