// Package hostbuf allocates the daemon's reusable transfer buffers.
//
// The pair is allocated once at startup, sized to the engine's frame lengths,
// and reused by every request cycle. When pinning is requested the buffers are
// anonymous mappings locked into RAM so a device runtime can DMA from them
// without staging copies; if the lock is refused (RLIMIT_MEMLOCK) the mapping
// is kept unlocked and Pinned reports false.
package hostbuf

import (
	"errors"
	"fmt"

	gopsutil "github.com/shirou/gopsutil/mem"
	"golang.org/x/sys/unix"
)

// DefaultMaxFraction caps the pair at a quarter of available memory.
const DefaultMaxFraction = 0.25

// ErrTooLarge is returned when the pair exceeds the memory allowance.
var ErrTooLarge = errors.New("hostbuf: buffers exceed memory allowance")

// Options control allocation.
type Options struct {
	// Pin maps and locks the buffers instead of using the Go heap.
	Pin bool

	// MaxFraction of currently available memory the pair may use.
	// Zero means DefaultMaxFraction; negative disables the check.
	MaxFraction float64
}

// Pair is the input/output buffer pair. In and Out must not be retained
// past Close.
type Pair struct {
	In  []byte
	Out []byte

	in, out region
}

// Alloc returns a pair with len(In) == inBytes and len(Out) == outBytes.
func Alloc(inBytes, outBytes int, opts Options) (*Pair, error) {
	if inBytes < 0 || outBytes < 0 {
		return nil, fmt.Errorf("hostbuf: negative size %d/%d", inBytes, outBytes)
	}
	if err := checkAllowance(uint64(inBytes)+uint64(outBytes), opts.MaxFraction); err != nil {
		return nil, err
	}

	in, err := allocRegion(inBytes, opts.Pin)
	if err != nil {
		return nil, fmt.Errorf("input buffer: %w", err)
	}
	out, err := allocRegion(outBytes, opts.Pin)
	if err != nil {
		in.release()
		return nil, fmt.Errorf("output buffer: %w", err)
	}
	return &Pair{In: in.b, Out: out.b, in: in, out: out}, nil
}

// Pinned reports whether both buffers are locked in memory.
func (p *Pair) Pinned() bool {
	return p.in.locked && p.out.locked
}

// Size is the combined length of both buffers.
func (p *Pair) Size() int {
	return len(p.In) + len(p.Out)
}

// Close unlocks and unmaps the buffers. It is safe to call more than once.
func (p *Pair) Close() error {
	err := errors.Join(p.in.release(), p.out.release())
	p.In, p.Out = nil, nil
	return err
}

type region struct {
	b      []byte
	mapped bool
	locked bool
}

func allocRegion(n int, pin bool) (region, error) {
	if n == 0 || !pin {
		return region{b: make([]byte, n)}, nil
	}
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return region{}, fmt.Errorf("mmap %d bytes: %w", n, err)
	}
	r := region{b: b, mapped: true}
	if unix.Mlock(b) == nil {
		r.locked = true
	}
	return r, nil
}

func (r *region) release() error {
	if !r.mapped {
		r.b = nil
		return nil
	}
	var err error
	if r.locked {
		err = unix.Munlock(r.b)
		r.locked = false
	}
	if uerr := unix.Munmap(r.b); uerr != nil && err == nil {
		err = uerr
	}
	r.b = nil
	r.mapped = false
	return err
}

func checkAllowance(total uint64, fraction float64) error {
	if fraction < 0 {
		return nil
	}
	if fraction == 0 {
		fraction = DefaultMaxFraction
	}
	vm, err := gopsutil.VirtualMemory()
	if err != nil {
		// No memory stats on this platform; let the allocation decide.
		return nil
	}
	allowance := uint64(float64(vm.Available) * fraction)
	if total > allowance {
		return fmt.Errorf("%w: need %d bytes, allowance %d of %d available", ErrTooLarge, total, allowance, vm.Available)
	}
	return nil
}
