package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (INFERSOCK_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("engine", os.Getenv("INFERSOCK_ENGINE"), &cfg.Engine)
	s.setString("sock", os.Getenv("INFERSOCK_SOCK"), &cfg.Socket)
	s.setString("log-level", os.Getenv("INFERSOCK_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("INFERSOCK_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("wait-timeout", os.Getenv("INFERSOCK_WAIT_TIMEOUT"), &cfg.WaitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("io-timeout", os.Getenv("INFERSOCK_IO_TIMEOUT"), &cfg.IOTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("backlog", os.Getenv("INFERSOCK_BACKLOG"), &cfg.Backlog); err != nil {
		return err
	}
	if err := s.setCountFromString("report-every", os.Getenv("INFERSOCK_REPORT_EVERY"), &cfg.ReportEvery); err != nil {
		return err
	}

	s.setBoolFromString("no-pin", os.Getenv("INFERSOCK_NO_PIN"), &cfg.NoPin)
	s.setBoolFromString("no-watch", os.Getenv("INFERSOCK_NO_WATCH"), &cfg.NoWatch)

	return nil
}

// ApplyClientEnv sets the client socket path from INFERSOCK_SOCK unless the
// sock flag was given.
func ApplyClientEnv(sock *string, changed map[string]bool) {
	newConfigSetter(changed).setString("sock", os.Getenv("INFERSOCK_SOCK"), sock)
}
