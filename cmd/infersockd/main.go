//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/infersock/internal/cliconfig"
	"github.com/bft-labs/infersock/internal/daemon"
	"github.com/bft-labs/infersock/internal/domain"
	"github.com/bft-labs/infersock/pkg/engine"
	"github.com/bft-labs/infersock/pkg/log"
)

var longHelp = strings.TrimSpace(`
Serve one pre-loaded inference engine to local clients over a Unix socket.

Each client sends a fixed-size input frame and receives a fixed-size output
frame, repeatedly, on one connection. Requests from all clients are run one
at a time against the engine; latency statistics are logged periodically.

Configuration is read from the config file, then INFERSOCK_* environment
variables, then flags; later sources win.
`)

var exampleUsage = strings.TrimSpace(`
  infersockd --engine model/resnet50_fp32.toml --sock /run/infersock.sock
  infersockd -e model/resnet50_fp32.toml --no-pin --log-format json
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the daemon command line and returns the process exit status.
func execute(args []string, stdout io.Writer, stderr *os.File) int {
	boot, _ := cliconfig.Logger(stderr, "info", "auto")

	root := newRootCmd(stderr, &boot)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		boot.Error().Err(err).Msg("infersockd")
		return 1
	}
	return 0
}

// newRootCmd builds the daemon command. Once configuration is resolved the
// configured logger replaces *boot.
func newRootCmd(stderr *os.File, boot *zerolog.Logger) *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:     "infersockd",
		Short:   "Serve an inference engine over a Unix socket",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:    cobra.ArbitraryArgs,

		FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
		SilenceUsage:       true,
		SilenceErrors:      true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			zl, err := cliconfig.Logger(stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			*boot = zl
			logger := log.NewZerologAdapterWithLogger(zl)
			zl.Info().Interface("config", cfg).Msg("configuration")

			eng, err := engine.Load(cfg.Engine)
			if err != nil {
				return domain.Setup(domain.StageEngine, err)
			}
			defer eng.Close()
			logger.Info("engine loaded",
				log.String("path", cfg.Engine),
				log.Int("input_bytes", eng.InputSize()),
				log.Int("output_bytes", eng.OutputSize()),
			)

			d, err := daemon.New(cfg.Daemon(), engine.Guard(eng), daemon.WithLogger(logger))
			if err != nil {
				return err
			}

			restore := daemon.HandleSignals(d)
			defer restore()

			if err := d.Run(context.Background()); err != nil {
				return err
			}
			logger.Info("daemon stopped", d.Snapshot().Fields()...)
			return nil
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.infersock/config.toml)")
	root.Flags().StringVarP(&cfg.Engine, "engine", "e", cfg.Engine, "engine manifest to load")
	root.Flags().StringVarP(&cfg.Socket, "sock", "s", cfg.Socket, "Unix socket path to listen on")
	root.Flags().IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "listen backlog")
	root.Flags().DurationVar(&cfg.WaitTimeout, "wait-timeout", cfg.WaitTimeout, "upper bound on each readiness wait")
	root.Flags().IntVar(&cfg.ReportEvery, "report-every", cfg.ReportEvery, "log latency statistics every N requests (0 disables)")
	root.Flags().DurationVar(&cfg.IOTimeout, "io-timeout", cfg.IOTimeout, "per-read/write timeout on client sockets (0 disables)")
	root.Flags().BoolVar(&cfg.NoPin, "no-pin", cfg.NoPin, "do not lock host buffers in memory")
	root.Flags().BoolVar(&cfg.NoWatch, "no-watch", cfg.NoWatch, "do not re-create the socket if its file is deleted")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (auto, console, json)")

	return root
}
