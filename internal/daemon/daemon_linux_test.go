//go:build linux

package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/infersock/internal/domain"
	"github.com/bft-labs/infersock/pkg/engine"
	"github.com/bft-labs/infersock/pkg/framing"
)

func reverseEngine(t *testing.T, n int) engine.Engine {
	t.Helper()
	b := engine.Binding{Dims: []int{n}, DType: "int8"}
	e, err := engine.New(engine.Manifest{Name: "rev", Backend: "reverse", Input: b, Output: b})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// poisonEngine fails or panics when the first input byte says so.
type poisonEngine struct{ n int }

func (e poisonEngine) InputSize() int  { return e.n }
func (e poisonEngine) OutputSize() int { return e.n }
func (e poisonEngine) Close() error    { return nil }

func (e poisonEngine) Infer(in, out []byte) error {
	switch in[0] {
	case 0xFF:
		return errors.New("poisoned input")
	case 0xFE:
		panic("kernel fault")
	}
	copy(out, in)
	return nil
}

func startDaemon(t *testing.T, eng engine.Engine, mutate func(*Config), opts ...Option) *Daemon {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "d.sock")
	cfg.WaitTimeout = 20 * time.Millisecond
	cfg.PinBuffers = false
	cfg.WatchEndpoint = false
	if mutate != nil {
		mutate(&cfg)
	}

	d, err := New(cfg, eng, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		if d.Status() == StateRunning {
			d.Stop()
		}
	})
	return d
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(conn net.Conn, in []byte, outLen int) ([]byte, error) {
	s := framing.NewConnStream(conn)
	if err := framing.WriteFrame(s, in); err != nil {
		return nil, err
	}
	out := make([]byte, outLen)
	if err := framing.ReadFrame(s, out); err != nil {
		return nil, err
	}
	return out, nil
}

// requireClosedByServer asserts the daemon hung up on conn.
func requireClosedByServer(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestDaemon_ReverseRoundTrip(t *testing.T) {
	d := startDaemon(t, reverseEngine(t, 4), nil)
	conn := dial(t, d.Addr())

	for i := 0; i < 3; i++ {
		out, err := roundTrip(conn, []byte{1, 2, 3, byte(4 + i)}, 4)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(4 + i), 3, 2, 1}, out)
	}
	require.Eventually(t, func() bool { return d.Snapshot().Count == 3 }, time.Second, 5*time.Millisecond)
}

func TestDaemon_SocketModeAndStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	require.NoError(t, os.WriteFile(path, []byte("leftover"), 0o600))

	d := startDaemon(t, reverseEngine(t, 4), func(c *Config) { c.SocketPath = path })

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.ModeSocket, fi.Mode()&os.ModeSocket)
	require.Equal(t, os.FileMode(0o666), fi.Mode().Perm())

	_, err = roundTrip(dial(t, d.Addr()), []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
}

func TestDaemon_PartialFrameDoesNotAffectOthers(t *testing.T) {
	d := startDaemon(t, reverseEngine(t, 4), nil)

	bad := dial(t, d.Addr())
	_, err := bad.Write([]byte{9, 9})
	require.NoError(t, err)
	require.NoError(t, bad.(*net.UnixConn).CloseWrite())

	good := dial(t, d.Addr())
	out, err := roundTrip(good, []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 3, 2, 1}, out)

	requireClosedByServer(t, bad)
}

func TestDaemon_ComputeFailureClosesOnlyThatClient(t *testing.T) {
	tests := []struct {
		name  string
		first byte
	}{
		{"error", 0xFF},
		{"panic", 0xFE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := startDaemon(t, poisonEngine{n: 4}, nil)

			victim := dial(t, d.Addr())
			require.NoError(t, framing.WriteFrame(framing.NewConnStream(victim), []byte{tt.first, 0, 0, 0}))
			requireClosedByServer(t, victim)

			other := dial(t, d.Addr())
			out, err := roundTrip(other, []byte{1, 2, 3, 4}, 4)
			require.NoError(t, err)
			require.Equal(t, []byte{1, 2, 3, 4}, out)
			require.Equal(t, StateRunning, d.Status())
		})
	}
}

func TestDaemon_ConcurrentClientsAreSerialized(t *testing.T) {
	const (
		clients = 8
		cycles  = 25
	)
	g := engine.Guard(reverseEngine(t, 4))
	d := startDaemon(t, g, nil)

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for c := 0; c < clients; c++ {
		conn := dial(t, d.Addr())
		wg.Add(1)
		go func(id byte, conn net.Conn) {
			defer wg.Done()
			for i := 0; i < cycles; i++ {
				out, err := roundTrip(conn, []byte{id, byte(i), 0, 1}, 4)
				if err != nil {
					errs <- err
					return
				}
				if out[0] != 1 || out[2] != byte(i) || out[3] != id {
					errs <- errors.New("response belongs to another request")
					return
				}
			}
		}(byte(c), conn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, uint64(clients*cycles), g.Calls())
	require.Eventually(t, func() bool { return d.Snapshot().Count == clients*cycles }, time.Second, 5*time.Millisecond)
}

func TestDaemon_StalledClientBlocksOthersUntilTimeout(t *testing.T) {
	const ioTimeout = 200 * time.Millisecond
	d := startDaemon(t, reverseEngine(t, 4), func(c *Config) { c.IOTimeout = ioTimeout })

	stalled := dial(t, d.Addr())
	_, err := stalled.Write([]byte{1, 2})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	out, err := roundTrip(dial(t, d.Addr()), []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 3, 2, 1}, out)
	require.GreaterOrEqual(t, time.Since(start), ioTimeout/2)

	requireClosedByServer(t, stalled)
}

func TestDaemon_StopRemovesSocket(t *testing.T) {
	rec := &recorder{}
	d := startDaemon(t, reverseEngine(t, 4), nil, WithEventHandler(rec))
	conn := dial(t, d.Addr())
	_, err := roundTrip(conn, []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)

	require.NoError(t, d.Stop())
	require.Equal(t, StateStopped, d.Status())
	require.NoFileExists(t, d.Addr())
	requireClosedByServer(t, conn)
	require.ErrorIs(t, d.Stop(), domain.ErrNotRunning)

	var states []State
	for _, c := range rec.Changes() {
		states = append(states, c.current)
	}
	require.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, states)
}

func TestDaemon_RestartAfterStop(t *testing.T) {
	d := startDaemon(t, reverseEngine(t, 4), nil)
	require.NoError(t, d.Stop())
	require.NoError(t, d.Start(context.Background()))

	_, err := roundTrip(dial(t, d.Addr()), []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	require.ErrorIs(t, d.Start(context.Background()), domain.ErrAlreadyRunning)
}

func TestDaemon_SignalStopsLoop(t *testing.T) {
	d := startDaemon(t, reverseEngine(t, 4), nil)
	restore := HandleSignals(d)
	defer restore()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after SIGTERM")
	}
	require.Equal(t, StateStopped, d.Status())
	require.NoFileExists(t, d.Addr())
}

func TestDaemon_ContextCancelStopsLoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "ctx.sock")
	cfg.WaitTimeout = 10 * time.Millisecond
	cfg.PinBuffers = false
	cfg.WatchEndpoint = false
	d, err := New(cfg, reverseEngine(t, 4))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Status() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDaemon_RecreatesRemovedSocket(t *testing.T) {
	d := startDaemon(t, reverseEngine(t, 4), func(c *Config) { c.WatchEndpoint = true })
	established := dial(t, d.Addr())

	require.NoError(t, os.Remove(d.Addr()))
	require.Eventually(t, func() bool {
		fi, err := os.Stat(d.Addr())
		return err == nil && fi.Mode()&os.ModeSocket != 0
	}, 2*time.Second, 10*time.Millisecond)

	_, err := roundTrip(dial(t, d.Addr()), []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	_, err = roundTrip(established, []byte{5, 6, 7, 8}, 4)
	require.NoError(t, err)
}

func TestDaemon_TwoDaemonsOneSocketPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.sock")
	b := engine.Binding{Dims: []int{4}, DType: "int8"}
	identity, err := engine.New(engine.Manifest{Name: "id", Backend: "identity", Input: b, Output: b})
	require.NoError(t, err)
	t.Cleanup(func() { identity.Close() })

	shared := func(c *Config) {
		c.SocketPath = path
		c.WatchEndpoint = true
	}
	first := startDaemon(t, reverseEngine(t, 4), shared)
	second := startDaemon(t, identity, shared)

	owner, ok, err := statEndpoint(path)
	require.NoError(t, err)
	require.True(t, ok)

	// give the first daemon's watcher several wait intervals to react
	time.Sleep(300 * time.Millisecond)
	cur, ok, err := statEndpoint(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, owner, cur)

	out, err := roundTrip(dial(t, path), []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, out)

	require.NoError(t, first.Stop())
	require.FileExists(t, path)
	out, err = roundTrip(dial(t, path), []byte{5, 6, 7, 8}, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{5, 6, 7, 8}, out)

	require.NoError(t, second.Stop())
	require.NoFileExists(t, path)
}

func TestDaemon_ReportsOnCadence(t *testing.T) {
	rec := &recorder{}
	d := startDaemon(t, reverseEngine(t, 4), func(c *Config) { c.ReportEvery = 5 }, WithEventHandler(rec))
	conn := dial(t, d.Addr())

	for i := 0; i < 12; i++ {
		_, err := roundTrip(conn, []byte{1, 2, 3, 4}, 4)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(rec.Reports()) == 2 }, time.Second, 5*time.Millisecond)
	reports := rec.Reports()
	require.Equal(t, uint64(5), reports[0].Count)
	require.Equal(t, uint64(10), reports[1].Count)
}

func TestDaemon_SetupFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(blocker, "d.sock")
	cfg.PinBuffers = false
	cfg.WatchEndpoint = false
	d, err := New(cfg, reverseEngine(t, 4))
	require.NoError(t, err)

	err = d.Start(context.Background())
	require.Error(t, err)
	require.True(t, domain.IsSetup(err))
	require.Equal(t, StateCrashed, d.Status())

	select {
	case <-d.Done():
	default:
		t.Fatal("Done not closed after setup failure")
	}
}

func TestNew_RejectsNilEngine(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
