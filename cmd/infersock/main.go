package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/infersock/internal/bench"
	"github.com/bft-labs/infersock/internal/classify"
	"github.com/bft-labs/infersock/internal/cliconfig"
	"github.com/bft-labs/infersock/internal/daemon"
	"github.com/bft-labs/infersock/pkg/log"
)

var exampleUsage = strings.TrimSpace(`
  infersock                  # 200 timed requests after 20 warm-up requests
  infersock 1000 50 --sock /tmp/infersock.sock
  infersock classify --image cat.jpg --labels imagenet_class_index.json
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// changedFlags returns the names of flags set on the command line.
func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

func countArg(args []string, i, def int) (int, error) {
	if len(args) <= i {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid count %q", args[i])
	}
	return n, nil
}

func main() {
	zl, _ := cliconfig.Logger(os.Stderr, "info", "auto")
	logger := log.NewZerologAdapterWithLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sock := daemon.DefaultSocketPath
	opts := bench.Options{
		InputBytes:  bench.DefaultInputBytes,
		OutputBytes: bench.DefaultOutputBytes,
		Fill:        bench.DefaultFill,
		Logger:      logger,
	}

	root := &cobra.Command{
		Use:     "infersock [iterations] [warmup]",
		Short:   "Benchmark an infersockd daemon",
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		Args:    cobra.MaximumNArgs(2),

		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Iterations, err = countArg(args, 0, bench.DefaultIterations); err != nil {
				return err
			}
			if opts.Warmup, err = countArg(args, 1, bench.DefaultWarmup); err != nil {
				return err
			}
			cliconfig.ApplyClientEnv(&sock, changedFlags(cmd))
			opts.Socket = sock

			res, err := bench.Run(ctx, opts)
			if err != nil {
				return err
			}
			res.Report(cmd.OutOrStdout())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&sock, "sock", "s", sock, "daemon socket path")
	root.Flags().IntVar(&opts.InputBytes, "input-bytes", opts.InputBytes, "input frame length in bytes")
	root.Flags().IntVar(&opts.OutputBytes, "output-bytes", opts.OutputBytes, "output frame length in bytes")
	root.Flags().Float32Var(&opts.Fill, "fill", opts.Fill, "float32 value written to every input element")

	root.AddCommand(classifyCommand(ctx, &sock))

	if err := root.Execute(); err != nil {
		zl.Error().Err(err).Msg("infersock")
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var be *bench.Error
	if errors.As(err, &be) {
		return bench.ExitCode(err)
	}
	return 1
}

func classifyCommand(ctx context.Context, sock *string) *cobra.Command {
	var (
		imagePath  string
		labelsPath string
		size       int
		top        int
		classes    int
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify one image with the served model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliconfig.ApplyClientEnv(sock, changedFlags(cmd))

			img, err := classify.LoadImage(imagePath)
			if err != nil {
				return err
			}
			var labels []string
			if labelsPath != "" {
				if labels, err = classify.LoadLabels(labelsPath); err != nil {
					return fmt.Errorf("load labels: %w", err)
				}
			}

			logits, err := classify.Infer(ctx, *sock, classify.Preprocess(img, size), classes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, p := range classify.TopK(classify.Softmax(logits), top, labels) {
				label := p.Label
				if label == "" {
					label = "class " + strconv.Itoa(p.Index)
				}
				fmt.Fprintf(out, "%d. %-32s %.4f  (idx %d)\n", i+1, label, p.Prob, p.Index)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "image to classify (JPEG or PNG)")
	cmd.Flags().StringVar(&labelsPath, "labels", "", "class labels (.json class index or one label per line)")
	cmd.Flags().IntVar(&size, "size", 224, "input resolution")
	cmd.Flags().IntVar(&top, "top", 5, "number of predictions to print")
	cmd.Flags().IntVar(&classes, "classes", 1000, "number of output logits")
	if err := cmd.MarkFlagRequired("image"); err != nil {
		panic(err)
	}
	return cmd
}

