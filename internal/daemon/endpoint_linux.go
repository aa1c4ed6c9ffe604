//go:build linux

package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bft-labs/infersock/internal/domain"
)

// endpointID identifies the socket file this process bound.
type endpointID struct {
	dev, ino uint64
}

// statEndpoint reports the identity of the file at path, if any.
func statEndpoint(path string) (endpointID, bool, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return endpointID{}, false, nil
		}
		return endpointID{}, false, err
	}
	return endpointID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, true, nil
}

// createEndpoint replaces any file at path with a fresh non-blocking
// listening Unix stream socket and returns its descriptor.
func createEndpoint(path string, backlog int, mode os.FileMode) (int, endpointID, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return -1, endpointID{}, domain.Setup(domain.StageEndpoint, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return -1, endpointID{}, domain.Setup(domain.StageEndpoint, fmt.Errorf("remove stale socket: %w", err))
	}
	return bindEndpoint(path, backlog, mode)
}

// bindEndpoint creates the listening socket at path. It fails with
// EADDRINUSE if any file already exists there.
func bindEndpoint(path string, backlog int, mode os.FileMode) (int, endpointID, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, endpointID{}, domain.Setup(domain.StageSocket, err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, endpointID{}, domain.Setup(domain.StageBind, fmt.Errorf("%s: %w", path, err))
	}

	id, _, err := statEndpoint(path)
	if err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, endpointID{}, domain.Setup(domain.StageEndpoint, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, endpointID{}, domain.Setup(domain.StageListen, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return -1, endpointID{}, domain.Setup(domain.StageEndpoint, fmt.Errorf("chmod socket: %w", err))
	}
	return fd, id, nil
}

// removeEndpoint deletes the socket file if it is still the one identified
// by id. A missing or foreign file is left alone.
func removeEndpoint(path string, id endpointID) error {
	cur, ok, err := statEndpoint(path)
	if err != nil || !ok || cur != id {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// setIOTimeout bounds blocking reads and writes on a client socket.
func setIOTimeout(fd int, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return err
	}
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}
