//go:build linux

package daemon

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bft-labs/infersock/internal/domain"
	"github.com/bft-labs/infersock/internal/hostbuf"
	"github.com/bft-labs/infersock/internal/stats"
	"github.com/bft-labs/infersock/pkg/engine"
	"github.com/bft-labs/infersock/pkg/log"
)

// ShutdownTimeout is the maximum time Stop waits for the loop to exit.
const ShutdownTimeout = 30 * time.Second

// Daemon serves an engine on a Unix socket.
type Daemon struct {
	cfg     Config
	engine  engine.Engine
	logger  log.Logger
	tracker *stats.Tracker
	handler EventHandler
	life    *lifecycle

	stop   atomic.Bool
	rebind atomic.Bool

	mu     sync.Mutex
	snap   stats.Snapshot
	runErr error
	done   chan struct{}
}

// New creates a daemon for eng. The engine stays owned by the caller and
// must outlive the daemon.
func New(cfg Config, eng engine.Engine, opts ...Option) (*Daemon, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: engine is nil", domain.ErrInvalidConfig)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: log.NoopLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracker == nil {
		o.tracker = stats.NewTracker(cfg.ReportEvery)
	}

	d := &Daemon{
		cfg:     cfg,
		engine:  eng,
		logger:  o.logger,
		tracker: o.tracker,
		handler: o.handler,
		done:    make(chan struct{}),
	}
	d.life = newLifecycle(o.logger, o.handler)
	close(d.done)
	return d, nil
}

// Start performs setup and begins serving in a background goroutine. Setup
// failures are returned as *domain.SetupError and leave nothing behind.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.life.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := d.life.TransitionTo(StateStarting, "start requested"); err != nil {
		return err
	}

	d.stop.Store(false)
	d.rebind.Store(false)
	done := make(chan struct{})
	d.mu.Lock()
	d.done = done
	d.runErr = nil
	d.mu.Unlock()

	m, watcher, err := d.setup()
	if err != nil {
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
		d.life.TransitionTo(StateCrashed, err.Error())
		close(done)
		return err
	}

	d.life.TransitionTo(StateRunning, "setup complete")
	d.logger.Info("serving",
		log.String("socket", d.cfg.SocketPath),
		log.Int("input_bytes", d.engine.InputSize()),
		log.Int("output_bytes", d.engine.OutputSize()),
		log.Bool("pinned", m.bufs.Pinned()),
	)

	go func() {
		defer close(done)
		runErr := m.run(ctx)
		if d.stop.Load() {
			d.logger.Info("stop requested")
		}
		if watcher != nil {
			watcher.Close()
		}
		if err := m.shutdown(); err != nil {
			d.logger.Warn("shutdown", log.Err(err))
		}
		d.closeBuffers(m)

		d.mu.Lock()
		d.runErr = runErr
		d.mu.Unlock()

		if runErr != nil {
			d.logger.Error("event loop failed", log.Err(runErr))
			d.life.TransitionTo(StateCrashed, runErr.Error())
			return
		}
		d.life.TransitionTo(StateStopping, "loop exited")
		d.life.TransitionTo(StateStopped, "resources released")
	}()
	return nil
}

func (d *Daemon) closeBuffers(m *mux) {
	if err := m.bufs.Close(); err != nil {
		d.logger.Warn("release buffers", log.Err(err))
	}
}

// setup acquires every resource in order, unwinding on failure.
func (d *Daemon) setup() (_ *mux, _ *endpointWatcher, err error) {
	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()

	bufs, err := hostbuf.Alloc(d.engine.InputSize(), d.engine.OutputSize(), hostbuf.Options{Pin: d.cfg.PinBuffers})
	if err != nil {
		return nil, nil, domain.Setup(domain.StageBuffers, err)
	}
	cleanup = append(cleanup, func() { bufs.Close() })
	if d.cfg.PinBuffers && !bufs.Pinned() {
		d.logger.Warn("buffers not locked in memory, continuing unpinned", log.Int("bytes", bufs.Size()))
	}

	listenFd, endpoint, err := createEndpoint(d.cfg.SocketPath, d.cfg.Backlog, d.cfg.SocketMode)
	if err != nil {
		return nil, nil, err
	}
	cleanup = append(cleanup, func() {
		unix.Close(listenFd)
		removeEndpoint(d.cfg.SocketPath, endpoint)
	})

	p, err := newPoller()
	if err != nil {
		return nil, nil, domain.Setup(domain.StagePoller, err)
	}
	cleanup = append(cleanup, func() { p.close() })
	if err := p.add(listenFd); err != nil {
		return nil, nil, domain.Setup(domain.StagePoller, err)
	}

	var w *endpointWatcher
	if d.cfg.WatchEndpoint {
		w, err = watchEndpoint(d.cfg.SocketPath, &d.rebind, d.logger)
		if err != nil {
			return nil, nil, domain.Setup(domain.StageWatcher, err)
		}
	}

	m := &mux{
		cfg:       d.cfg,
		engine:    d.engine,
		bufs:      bufs,
		tracker:   d.tracker,
		logger:    d.logger,
		publish:   d.publish,
		report:    d.report,
		poller:    p,
		listenFd:  listenFd,
		endpoint:  endpoint,
		clients:   make(map[int]*client),
		events:    make([]unix.EpollEvent, d.cfg.MaxEvents),
		acceptLog: logLimiter{every: time.Second},
		stop:      &d.stop,
		rebind:    &d.rebind,
	}
	return m, w, nil
}

func (d *Daemon) publish(s stats.Snapshot) {
	d.mu.Lock()
	d.snap = s
	d.mu.Unlock()
}

func (d *Daemon) report(s stats.Snapshot) {
	if d.handler != nil {
		d.handler.OnReport(s)
	}
}

// RequestStop asks the loop to exit at its next iteration. It only stores a
// flag and is safe to call from a signal-handling goroutine.
func (d *Daemon) RequestStop() {
	d.stop.Store(true)
}

// Stop requests a stop and waits up to ShutdownTimeout for the loop to exit
// and release its resources.
func (d *Daemon) Stop() error {
	if !d.life.CanStop() {
		return domain.ErrNotRunning
	}
	d.RequestStop()

	select {
	case <-d.Done():
		return d.Err()
	case <-time.After(ShutdownTimeout):
		return domain.ErrShutdownTimeout
	}
}

// Done is closed once the loop has exited and resources are released.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error that ended the last run, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Status returns the current lifecycle state.
func (d *Daemon) Status() State {
	return d.life.State()
}

// Snapshot returns the latest latency aggregate.
func (d *Daemon) Snapshot() stats.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

// Addr returns the socket path.
func (d *Daemon) Addr() string {
	return d.cfg.SocketPath
}

// Run starts d and blocks until it stops, by RequestStop, ctx or a loop
// failure.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-d.Done()
	return d.Err()
}
