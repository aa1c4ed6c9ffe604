package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

func init() {
	Register("identity", newIdentity)
	Register("reverse", newReverse)
	Register("meanpool", newMeanPool)
}

// cpuEngine carries the sizes shared by the built-in backends.
type cpuEngine struct {
	in, out int
	closed  bool
	run     func(in, out []byte)
}

func (e *cpuEngine) InputSize() int  { return e.in }
func (e *cpuEngine) OutputSize() int { return e.out }

func (e *cpuEngine) Infer(in, out []byte) error {
	if e.closed {
		return ErrClosed
	}
	if err := checkBuffers(e, in, out); err != nil {
		return err
	}
	e.run(in, out)
	return nil
}

func (e *cpuEngine) Close() error {
	e.closed = true
	return nil
}

func sizes(m Manifest) (int, int) {
	in, _ := m.Input.Bytes()
	out, _ := m.Output.Bytes()
	return in, out
}

func newIdentity(m Manifest) (Engine, error) {
	in, out := sizes(m)
	if in != out {
		return nil, fmt.Errorf("identity needs equal input and output sizes, got %d and %d", in, out)
	}
	return &cpuEngine{in: in, out: out, run: func(src, dst []byte) { copy(dst, src) }}, nil
}

func newReverse(m Manifest) (Engine, error) {
	in, out := sizes(m)
	if in != out {
		return nil, fmt.Errorf("reverse needs equal input and output sizes, got %d and %d", in, out)
	}
	return &cpuEngine{in: in, out: out, run: reverseBytes}, nil
}

func reverseBytes(src, dst []byte) {
	n := len(src)
	for i := 0; i < n; i++ {
		dst[i] = src[n-1-i]
	}
}

// newMeanPool builds a float32 engine whose every output element is the mean
// of one contiguous chunk of the input. The last chunk absorbs the remainder.
func newMeanPool(m Manifest) (Engine, error) {
	for _, b := range []Binding{m.Input, m.Output} {
		if !isFloat32(b.DType) {
			return nil, fmt.Errorf("meanpool needs float32 bindings, %q is %s", b.Name, b.DType)
		}
	}
	in, out := sizes(m)
	nIn, nOut := in/4, out/4
	if nOut > nIn {
		return nil, fmt.Errorf("meanpool needs at least as many inputs (%d) as outputs (%d)", nIn, nOut)
	}
	chunk := nIn / nOut
	return &cpuEngine{in: in, out: out, run: func(src, dst []byte) {
		for o := 0; o < nOut; o++ {
			start := o * chunk
			end := start + chunk
			if o == nOut-1 {
				end = nIn
			}
			var sum float64
			for i := start; i < end; i++ {
				sum += float64(math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:])))
			}
			binary.LittleEndian.PutUint32(dst[o*4:], math.Float32bits(float32(sum/float64(end-start))))
		}
	}}, nil
}

func isFloat32(dtype string) bool {
	switch strings.ToLower(dtype) {
	case "float32", "fp32", "float":
		return true
	}
	return false
}
