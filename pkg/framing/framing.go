package framing

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// Transport error kinds. Every error returned by WriteFrame or ReadFrame
// matches exactly one of them with errors.Is.
var (
	ErrWriteFailed = errors.New("framing: write failed")
	ErrReadFailed  = errors.New("framing: read failed")
	ErrPeerClosed  = errors.New("framing: peer closed")
)

// Stream is a duplex byte stream that may transfer fewer bytes than asked.
type Stream interface {
	Send(p []byte) (int, error)
	Recv(p []byte) (int, error)
}

// Error describes a failed frame transfer.
type Error struct {
	Kind error
	// Done is the number of bytes transferred before the failure.
	Done int
	Want int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v after %d/%d bytes", e.Kind, e.Done, e.Want)
	}
	return fmt.Sprintf("%v after %d/%d bytes: %v", e.Kind, e.Done, e.Want, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WriteFrame sends all of buf. It returns nil only when len(buf) bytes were
// accepted by the stream.
func WriteFrame(s Stream, buf []byte) error {
	want := len(buf)
	done := 0
	for done < want {
		n, err := s.Send(buf[done:])
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return &Error{Kind: ErrWriteFailed, Done: done, Want: want, Err: err}
		}
		if n <= 0 {
			return &Error{Kind: ErrWriteFailed, Done: done, Want: want, Err: io.ErrShortWrite}
		}
		done += n
	}
	return nil
}

// ReadFrame fills buf completely. A stream that reaches end of file before
// len(buf) bytes arrive yields ErrPeerClosed.
func ReadFrame(s Stream, buf []byte) error {
	want := len(buf)
	done := 0
	for done < want {
		n, err := s.Recv(buf[done:])
		if n > 0 {
			done += n
		}
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			if errors.Is(err, io.EOF) {
				if done == want {
					return nil
				}
				return &Error{Kind: ErrPeerClosed, Done: done, Want: want}
			}
			return &Error{Kind: ErrReadFailed, Done: done, Want: want, Err: err}
		}
		if n == 0 {
			return &Error{Kind: ErrPeerClosed, Done: done, Want: want}
		}
	}
	return nil
}
