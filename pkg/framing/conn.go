package framing

import "io"

// ConnStream adapts an io.ReadWriter such as net.Conn to Stream.
type ConnStream struct {
	rw io.ReadWriter
}

// NewConnStream wraps rw.
func NewConnStream(rw io.ReadWriter) *ConnStream {
	return &ConnStream{rw: rw}
}

func (c *ConnStream) Send(p []byte) (int, error) { return c.rw.Write(p) }
func (c *ConnStream) Recv(p []byte) (int, error) { return c.rw.Read(p) }
