// Package hugepage computes the hugepage reservation an application needs
// and checks that the reservation is mounted.
package hugepage

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Sizing constants.
const (
	// DefaultPageSize is the 2 MiB x86 hugepage.
	DefaultPageSize int64 = 2 * 1024 * 1024

	// Overhead is the fixed memory used by the packet buffer pool bookkeeping.
	Overhead int64 = 350_000

	// BufferOverhead is the memory cost of one packet buffer.
	BufferOverhead int64 = 2_048
)

// Errors returned by the sizing functions.
var (
	ErrInvalidInput = errors.New("hugepage: invalid sizing input")
	ErrOverflow     = errors.New("hugepage: size overflows int64")
)

// Queue holds the ring depths of one device.
type Queue struct {
	Rx int64
	Tx int64
}

// Input is everything the reservation depends on.
type Input struct {
	SharedMemory int64   // bytes requested for application shared memory
	PacketPool   int64   // packet buffers per device
	Queues       []Queue // one entry per device
}

// Raw returns the unrounded memory requirement in bytes:
//
//	shared + Overhead + (pool*devices + sum(rx+tx)) * BufferOverhead
func Raw(in Input) (int64, error) {
	if in.SharedMemory < 0 || in.PacketPool < 0 {
		return 0, fmt.Errorf("%w: negative memory field", ErrInvalidInput)
	}

	buffers, err := mul(in.PacketPool, int64(len(in.Queues)))
	if err != nil {
		return 0, err
	}
	for i, q := range in.Queues {
		if q.Rx < 0 || q.Tx < 0 {
			return 0, fmt.Errorf("%w: negative queue depth on device %d", ErrInvalidInput, i)
		}
		if buffers, err = add(buffers, q.Rx); err != nil {
			return 0, err
		}
		if buffers, err = add(buffers, q.Tx); err != nil {
			return 0, err
		}
	}

	bufferBytes, err := mul(buffers, BufferOverhead)
	if err != nil {
		return 0, err
	}
	total, err := add(in.SharedMemory, Overhead)
	if err != nil {
		return 0, err
	}
	return add(total, bufferBytes)
}

// Required returns the reservation rounded up to a multiple of pageSize.
func Required(in Input, pageSize int64) (int64, error) {
	raw, err := Raw(in)
	if err != nil {
		return 0, err
	}
	return RoundUp(raw, pageSize)
}

// RoundUp rounds size up to the next multiple of pageSize. A size that is
// already a multiple is returned unchanged.
func RoundUp(size, pageSize int64) (int64, error) {
	if pageSize <= 0 {
		return 0, fmt.Errorf("%w: page size %d", ErrInvalidInput, pageSize)
	}
	if size < 0 {
		return 0, fmt.Errorf("%w: size %d", ErrInvalidInput, size)
	}
	remainder := size % pageSize
	if remainder == 0 {
		return size, nil
	}
	return add(size-remainder, pageSize)
}

// Pages returns how many pages of pageSize cover size.
func Pages(size, pageSize int64) int64 {
	if pageSize <= 0 {
		return 0
	}
	return (size + pageSize - 1) / pageSize
}

// Describe formats a byte count for logs, e.g. "10 MiB (10,485,760 B)".
func Describe(size int64) string {
	if size < 0 {
		return fmt.Sprintf("%d B", size)
	}
	return fmt.Sprintf("%s (%s B)", humanize.IBytes(uint64(size)), humanize.Comma(size))
}

func add(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

func mul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt64/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}
