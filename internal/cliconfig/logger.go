package cliconfig

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger builds the root logger writing to out. Format "auto" uses a
// colored console writer when out is a terminal and JSON otherwise.
func Logger(out *os.File, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	var w io.Writer
	switch format {
	case "json":
		w = out
	case "console":
		w = consoleWriter(out, tty)
	case "", "auto":
		if tty {
			w = consoleWriter(out, true)
		} else {
			w = out
		}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func consoleWriter(out *os.File, color bool) zerolog.ConsoleWriter {
	if !color {
		return zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}
	}
	return zerolog.ConsoleWriter{Out: colorable.NewColorable(out), TimeFormat: time.RFC3339}
}
