// Package daemon serves one engine to many local clients over a Unix socket.
//
// A single goroutine owns the listening socket, an epoll instance, every
// client descriptor, the host buffer pair and the engine. Each iteration of
// its loop waits (bounded) for readiness, accepts new clients, and runs one
// complete request cycle per readable client: read one input frame, infer,
// write one output frame. Cycles never overlap, so the engine and buffers
// need no locking. A client that stalls mid-frame delays everyone else until
// it completes or its I/O timeout fires.
//
// The event loop is Linux-only.
package daemon
