// Package bench drives a fixed number of request cycles against a running
// daemon and reports latency.
package bench

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/bft-labs/infersock/internal/stats"
	"github.com/bft-labs/infersock/pkg/framing"
	"github.com/bft-labs/infersock/pkg/log"
)

// Defaults match a 224x224 RGB float32 input and 1000 float32 logits.
const (
	DefaultIterations  = 200
	DefaultWarmup      = 20
	DefaultInputBytes  = 3 * 224 * 224 * 4
	DefaultOutputBytes = 1000 * 4
	DefaultFill        = 0.5
)

// Failure stages reported by Error.
const (
	StageConnect   = "connect"
	StageTransport = "transport"
)

// Error is a benchmark failure.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// ExitCode maps err to the process exit status: 0 on success, 1 when the
// daemon could not be reached, 2 when a request cycle failed.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var be *Error
	if errors.As(err, &be) && be.Stage == StageConnect {
		return 1
	}
	return 2
}

// Options configure a run.
type Options struct {
	Socket      string
	Iterations  int
	Warmup      int
	InputBytes  int
	OutputBytes int
	Fill        float32
	Logger      log.Logger
}

// Result is the outcome of a run.
type Result struct {
	Stats   stats.Snapshot
	Elapsed time.Duration
	// First is out[0] decoded as little-endian float32, NaN if the output
	// frame is shorter than four bytes.
	First float32
}

// Run connects once, sends opts.Warmup untimed requests, then times
// opts.Iterations requests. Cancelling ctx closes the connection, so a
// cycle blocked on the daemon fails with a transport error wrapping
// ctx.Err().
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Logger == nil {
		opts.Logger = log.NoopLogger{}
	}
	if opts.InputBytes < 0 || opts.OutputBytes < 0 || opts.Iterations < 0 || opts.Warmup < 0 {
		return Result{}, fmt.Errorf("bench: negative option in %+v", opts)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", opts.Socket)
	if err != nil {
		return Result{}, &Error{Stage: StageConnect, Err: err}
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	in := make([]byte, opts.InputBytes)
	out := make([]byte, opts.OutputBytes)
	Fill(in, opts.Fill)

	s := framing.NewConnStream(conn)
	fail := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &Error{Stage: StageTransport, Err: err}
	}
	cycle := func() error {
		if err := framing.WriteFrame(s, in); err != nil {
			return fail(err)
		}
		if err := framing.ReadFrame(s, out); err != nil {
			return fail(err)
		}
		return nil
	}

	for i := 0; i < opts.Warmup; i++ {
		if err := cycle(); err != nil {
			return Result{}, err
		}
	}
	opts.Logger.Debug("warmup done", log.Int("iterations", opts.Warmup))

	t := stats.NewTracker(0)
	begin := time.Now()
	for i := 0; i < opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, &Error{Stage: StageTransport, Err: err}
		}
		start := time.Now()
		if err := cycle(); err != nil {
			return Result{}, err
		}
		t.RecordDuration(time.Since(start))
	}

	return Result{
		Stats:   t.Snapshot(),
		Elapsed: time.Since(begin),
		First:   firstFloat(out),
	}, nil
}

// Fill writes v as little-endian float32 into every whole 4-byte slot of buf.
func Fill(buf []byte, v float32) {
	bits := math.Float32bits(v)
	for i := 0; i+4 <= len(buf); i += 4 {
		binary.LittleEndian.PutUint32(buf[i:], bits)
	}
}

func firstFloat(out []byte) float32 {
	if len(out) < 4 {
		return float32(math.NaN())
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(out))
}

// Report renders r as a table followed by the first output value.
func (r Result) Report(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Iters", "Mean ms", "Std ms", "Min ms", "Max ms", "P95 ms", "QPS"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.Append([]string{
		strconv.FormatUint(r.Stats.Count, 10),
		ms(r.Stats.Mean),
		ms(r.Stats.Stddev),
		ms(r.Stats.Min),
		ms(r.Stats.Max),
		ms(r.Stats.P95),
		strconv.FormatFloat(r.Stats.QPS, 'f', 1, 64),
	})
	table.Render()
	fmt.Fprintf(w, "Sample out[0] = %g\n", r.First)
}

func ms(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
