package daemon

import (
	"os"
	"os/signal"
	"syscall"
)

// Stopper is anything that can be asked to stop from a signal.
type Stopper interface {
	RequestStop()
}

// HandleSignals routes SIGINT and SIGTERM to s.RequestStop and ignores
// SIGPIPE so writes to vanished clients surface as errors. The returned
// function restores default handling.
func HandleSignals(s Stopper) (restore func()) {
	signal.Ignore(syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				s.RequestStop()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
