package framing

import "golang.org/x/sys/unix"

// FdStream is a Stream over a connected socket descriptor. Sends use
// MSG_NOSIGNAL so a vanished peer surfaces as EPIPE instead of SIGPIPE.
type FdStream int

func (fd FdStream) Send(p []byte) (int, error) {
	return unix.SendmsgN(int(fd), p, nil, nil, unix.MSG_NOSIGNAL)
}

func (fd FdStream) Recv(p []byte) (int, error) {
	n, err := unix.Read(int(fd), p)
	if err != nil {
		return 0, err
	}
	return n, nil
}
