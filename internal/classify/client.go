package classify

import (
	"context"
	"fmt"
	"net"

	"github.com/bft-labs/infersock/pkg/framing"
)

// Infer sends one input frame to the daemon at sock and returns classes
// float32 logits.
func Infer(ctx context.Context, sock string, input []float32, classes int) ([]float32, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", sock)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	s := framing.NewConnStream(conn)
	if err := framing.WriteFrame(s, EncodeFloat32(input)); err != nil {
		return nil, fmt.Errorf("send input: %w", cause(ctx, err))
	}
	out := make([]byte, 4*classes)
	if err := framing.ReadFrame(s, out); err != nil {
		return nil, fmt.Errorf("receive logits: %w", cause(ctx, err))
	}
	return DecodeFloat32(out), nil
}

// cause prefers the context error when cancellation closed the connection.
func cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
