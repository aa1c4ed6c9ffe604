// Package log provides the logging abstraction used across infersock.
//
// Components log through the Logger interface so the daemon core never
// depends on a concrete logging library. A zerolog adapter backs the
// command-line binaries and a no-op logger keeps tests quiet.
//
// # Usage
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("daemon up", log.String("sock", path))
//
// Per-connection loggers are derived with With:
//
//	connLog := logger.With(log.String("conn", id))
//	connLog.Warn("read failed", log.Err(err))
package log
