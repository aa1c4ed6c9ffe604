//go:build linux

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bft-labs/infersock/internal/domain"
	"github.com/bft-labs/infersock/internal/hostbuf"
	"github.com/bft-labs/infersock/internal/stats"
	"github.com/bft-labs/infersock/pkg/engine"
	"github.com/bft-labs/infersock/pkg/framing"
	"github.com/bft-labs/infersock/pkg/log"
)

// client is one accepted connection.
type client struct {
	fd       int
	id       string
	log      log.Logger
	since    time.Time
	acceptAt uint64 // loop iteration that accepted it
	cycles   uint64
}

// mux is the event loop. Every field is owned by the loop goroutine except
// stop and rebind.
//
// A rebind is attempted one wait interval after the watcher reports the
// socket file gone, and only if the path is still empty. Once another socket
// occupies the path the daemon stops re-creating its own.
type mux struct {
	cfg     Config
	engine  engine.Engine
	bufs    *hostbuf.Pair
	tracker *stats.Tracker
	logger  log.Logger
	publish func(stats.Snapshot)
	report  func(stats.Snapshot)

	poller   *poller
	listenFd int
	endpoint endpointID
	clients  map[int]*client
	events   []unix.EpollEvent
	iter     uint64

	rebindAt  time.Time
	watchOff  bool
	acceptLog logLimiter

	stop   *atomic.Bool
	rebind *atomic.Bool
}

func (m *mux) stopping(ctx context.Context) bool {
	if m.stop.Load() {
		return true
	}
	return ctx.Err() != nil
}

// run serves until a stop is requested or ctx is cancelled. It returns an
// error only when readiness waiting itself fails.
func (m *mux) run(ctx context.Context) error {
	for !m.stopping(ctx) {
		m.iter++
		if m.rebind.CompareAndSwap(true, false) && !m.watchOff && m.rebindAt.IsZero() {
			m.rebindAt = time.Now().Add(m.cfg.WaitTimeout)
		}
		if !m.rebindAt.IsZero() && !time.Now().Before(m.rebindAt) {
			m.rebindEndpoint()
		}

		n, err := m.poller.wait(m.events, m.cfg.WaitTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			ev := m.events[i]
			fd := int(ev.Fd)
			if fd == m.listenFd {
				m.acceptPending()
				continue
			}
			c, ok := m.clients[fd]
			if !ok || c.acceptAt == m.iter {
				// closed earlier in this batch, or the descriptor was
				// reused by a client accepted in this batch
				continue
			}
			if ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				m.closeClient(c, "hangup")
				continue
			}
			if ev.Events&unix.EPOLLIN != 0 {
				m.serve(c)
			}
		}
	}
	return nil
}

// acceptPending drains the listener's accept queue.
func (m *mux) acceptPending() {
	for {
		fd, _, err := unix.Accept4(m.listenFd, unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				if ok, suppressed := m.acceptLog.allow(time.Now()); ok {
					m.logger.Warn("accept failed",
						log.Err(&domain.AcceptError{Err: err}),
						log.Int("suppressed", suppressed),
					)
				}
			}
			return
		}

		if err := setIOTimeout(fd, m.cfg.IOTimeout); err != nil {
			m.logger.Warn("set client timeout", log.Err(err))
		}
		if err := m.poller.add(fd); err != nil {
			m.logger.Warn("register client", log.Err(err))
			unix.Close(fd)
			continue
		}

		id := uuid.NewString()
		c := &client{
			fd:       fd,
			id:       id,
			log:      m.logger.With(log.String("client", id)),
			since:    time.Now(),
			acceptAt: m.iter,
		}
		m.clients[fd] = c
		c.log.Debug("client connected", log.Int("clients", len(m.clients)))
	}
}

// serve runs one full request cycle for c. Any failure closes c and leaves
// the other clients untouched.
func (m *mux) serve(c *client) {
	start := time.Now()

	if err := framing.ReadFrame(framing.FdStream(c.fd), m.bufs.In); err != nil {
		var fe *framing.Error
		if errors.Is(err, framing.ErrPeerClosed) && errors.As(err, &fe) && fe.Done == 0 {
			m.closeClient(c, "peer closed")
			return
		}
		c.log.Warn("read failed", log.Err(err))
		m.closeClient(c, "read failed")
		return
	}

	if err := m.infer(); err != nil {
		c.log.Error("inference failed", log.Err(err))
		m.closeClient(c, "inference failed")
		return
	}

	if err := framing.WriteFrame(framing.FdStream(c.fd), m.bufs.Out); err != nil {
		c.log.Warn("write failed", log.Err(err))
		m.closeClient(c, "write failed")
		return
	}

	c.cycles++
	due := m.tracker.RecordDuration(time.Since(start))
	snap := m.tracker.Snapshot()
	if m.publish != nil {
		m.publish(snap)
	}
	if due {
		m.logger.Info("metrics", snap.Fields()...)
		if m.report != nil {
			m.report(snap)
		}
	}
}

func (m *mux) infer() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.ComputeError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := m.engine.Infer(m.bufs.In, m.bufs.Out); err != nil {
		return &domain.ComputeError{Err: err}
	}
	return nil
}

func (m *mux) closeClient(c *client, reason string) {
	if err := m.poller.remove(c.fd); err != nil && !errors.Is(err, unix.ENOENT) {
		c.log.Debug("deregister client", log.Err(err))
	}
	unix.Close(c.fd)
	delete(m.clients, c.fd)
	c.log.Debug("client disconnected",
		log.String("reason", reason),
		log.Uint64("cycles", c.cycles),
		log.Duration("connected", time.Since(c.since)),
	)
}

// rebindEndpoint re-creates the socket file after it vanished. It never
// removes a file. Established clients keep being served either way.
func (m *mux) rebindEndpoint() {
	m.rebindAt = time.Time{}
	path := m.cfg.SocketPath

	id, exists, err := statEndpoint(path)
	if err != nil {
		m.logger.Error("stat socket path", log.Err(err))
		m.rebindAt = time.Now().Add(m.cfg.WaitTimeout)
		return
	}
	if exists {
		if id != m.endpoint {
			m.abandonEndpoint("socket path taken by another socket")
		}
		return
	}

	fd, id, err := bindEndpoint(path, m.cfg.Backlog, m.cfg.SocketMode)
	if err != nil {
		if errors.Is(err, unix.EADDRINUSE) {
			m.abandonEndpoint("socket path taken by another socket")
			return
		}
		m.logger.Error("re-create socket", log.Err(err))
		m.rebindAt = time.Now().Add(m.cfg.WaitTimeout)
		return
	}
	if err := m.poller.add(fd); err != nil {
		m.logger.Error("register listener", log.Err(err))
		unix.Close(fd)
		removeEndpoint(path, id)
		m.rebindAt = time.Now().Add(m.cfg.WaitTimeout)
		return
	}

	if m.listenFd >= 0 {
		m.poller.remove(m.listenFd)
		unix.Close(m.listenFd)
	}
	m.listenFd = fd
	m.endpoint = id
	m.logger.Info("socket re-created", log.String("path", path))
}

func (m *mux) abandonEndpoint(reason string) {
	m.watchOff = true
	m.logger.Warn("no longer re-creating socket", log.String("path", m.cfg.SocketPath), log.String("reason", reason))
}

// shutdown closes every client and the listener and removes the socket file
// if it is still the one this loop bound.
func (m *mux) shutdown() error {
	for _, c := range m.clients {
		m.closeClient(c, "shutdown")
	}
	var errs []error
	if m.listenFd >= 0 {
		errs = append(errs, unix.Close(m.listenFd))
		m.listenFd = -1
	}
	errs = append(errs, m.poller.close())
	errs = append(errs, removeEndpoint(m.cfg.SocketPath, m.endpoint))
	return errors.Join(errs...)
}
