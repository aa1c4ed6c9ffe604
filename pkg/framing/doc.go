// Package framing implements the infersock wire protocol primitives.
//
// The protocol has no header. A client sends exactly one input frame and then
// reads exactly one output frame; frame lengths are fixed by the engine the
// daemon has loaded and agreed on out of band. WriteFrame and ReadFrame only
// report success once every byte of the frame has crossed the stream, looping
// over partial sends and receives and retrying calls interrupted by signals.
//
// Two Stream adapters are provided: FdStream for raw socket descriptors owned
// by the daemon's event loop, and ConnStream for net.Conn based clients.
package framing
