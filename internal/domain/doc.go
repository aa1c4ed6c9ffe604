// Package domain holds the error taxonomy shared by the infersock daemon,
// its command-line front ends and the clients.
//
// Errors fall into four classes:
//
//   - [SetupError]: fatal, returned before the daemon serves anything
//   - transport errors from pkg/framing: close the offending connection
//   - [ComputeError]: the engine failed one request; close that connection
//   - [AcceptError]: transient accept failure; the loop keeps running
package domain
