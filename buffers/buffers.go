// Package buffers provides typed GPU buffers on top of a device.Context.
//
// Three kinds exist:
//
//   - Storage: device-resident read/write memory, bindable to shaders and
//     usable as a copy source or destination.
//   - Readback: a host-mappable staging buffer that grows on demand.
//   - Value: a single fixed-layout record, bindable as a uniform.
//
// Buffers are untyped on the device; element types are supplied to the
// generic functions (NewStorage, Write, Read, ...). Element types must be
// plain data without pointers, such as float32, int32 or structs of them.
// Offsets and lengths are counted in elements and converted to bytes with
// overflow checks. Buffers perform no locking; concurrent writes to the same
// buffer must be serialized by the caller.
package buffers

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/device"
)

// Errors returned by buffer operations.
var (
	// ErrOverflow is returned when offset or length arithmetic overflows, or
	// when a write would run past the end of the buffer.
	ErrOverflow = errors.New("buffers: size overflow")

	// ErrOutOfBounds is returned when a read addresses elements outside the
	// source buffer, or when the readback buffer is too small.
	ErrOutOfBounds = errors.New("buffers: range out of bounds")

	// ErrEmptyWrite is returned when writing an empty slice.
	ErrEmptyWrite = errors.New("buffers: empty write")

	// ErrUnaligned is returned when a copy offset or length is not a
	// multiple of 4 bytes.
	ErrUnaligned = errors.New("buffers: offset or length not 4-byte aligned")

	// ErrZeroSized is returned for element types of size zero.
	ErrZeroSized = errors.New("buffers: zero-sized element type")

	// ErrDestroyed is returned when using a destroyed buffer.
	ErrDestroyed = errors.New("buffers: buffer destroyed")
)

// copyAlignment is the byte alignment of queue writes and buffer copies.
const copyAlignment = 4

// Buffer is implemented by all three buffer kinds.
type Buffer interface {
	// Raw returns the HAL buffer, or nil once destroyed.
	Raw() hal.Buffer
	// Size returns the requested size in bytes. The device allocation may
	// be larger; see BindingSize.
	Size() uint64
}

// Len returns how many elements of type T fit in b.
func Len[T any](b Buffer) int {
	size := uint64(unsafe.Sizeof(*new(T)))
	if size == 0 || b == nil {
		return 0
	}
	return int(b.Size() / size)
}

// elemSize returns the size of T in bytes.
func elemSize[T any]() (uint64, error) {
	size := uint64(unsafe.Sizeof(*new(T)))
	if size == 0 {
		var zero T
		return 0, fmt.Errorf("%w: %T", ErrZeroSized, zero)
	}
	return size, nil
}

// byteSpan converts an element window into a byte offset and length,
// checking every step for overflow.
func byteSpan(elem uint64, start, count int) (offset, length uint64, err error) {
	if start < 0 || count < 0 {
		return 0, 0, fmt.Errorf("%w: start=%d count=%d", ErrOutOfBounds, start, count)
	}
	hi, offset := bits.Mul64(uint64(start), elem)
	if hi != 0 {
		return 0, 0, fmt.Errorf("%w: offset of element %d", ErrOverflow, start)
	}
	hi, length = bits.Mul64(uint64(count), elem)
	if hi != 0 {
		return 0, 0, fmt.Errorf("%w: length of %d elements", ErrOverflow, count)
	}
	if _, carry := bits.Add64(offset, length, 0); carry != 0 {
		return 0, 0, fmt.Errorf("%w: end of window %d+%d", ErrOverflow, start, count)
	}
	return offset, length, nil
}

// countBytes returns the byte size of n elements of T.
func countBytes[T any](n int) (uint64, error) {
	elem, err := elemSize[T]()
	if err != nil {
		return 0, err
	}
	_, length, err := byteSpan(elem, 0, n)
	return length, err
}

// asBytes reinterprets a slice of plain data as its backing bytes.
func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(s[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*size)
}

func aligned(v uint64) bool { return v%copyAlignment == 0 }

func alignUp(v, a uint64) uint64 { return (v + a - 1) / a * a }

// paddedSize is the allocation size backing a buffer of size bytes: at
// least one copy unit, rounded up to the copy alignment.
func paddedSize(size uint64) uint64 {
	return alignUp(max(size, copyAlignment), copyAlignment)
}

// BindingSize returns the byte range a shader binding of b covers. It is
// b.Size() rounded up to the copy alignment, with a minimum of one unit.
func BindingSize(b Buffer) uint64 { return paddedSize(b.Size()) }

// allocate creates a HAL buffer for size bytes. The allocation is padded so
// every buffer can take part in copies and bindings; callers keep size as
// the logical capacity.
func allocate(ctx *device.Context, label string, size uint64, usage gputypes.BufferUsage) (hal.Buffer, error) {
	padded := paddedSize(size)
	buf, err := ctx.Device().CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  padded,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("buffers: create %s (%d bytes): %w", label, size, err)
	}
	gpumath.Logger().Debug("buffers: allocated", "label", label, "bytes", size, "padded", padded)
	return buf, nil
}

// WriteAsync schedules a host-to-device write of data at element start.
// The write is ordered before any work submitted afterwards; it does not
// block. Nothing is written when an error is returned.
func WriteAsync[T any](ctx *device.Context, dst Buffer, data []T, start int) error {
	if len(data) == 0 {
		return ErrEmptyWrite
	}
	raw := dst.Raw()
	if raw == nil {
		return ErrDestroyed
	}
	elem, err := elemSize[T]()
	if err != nil {
		return err
	}
	offset, length, err := byteSpan(elem, start, len(data))
	if err != nil {
		return err
	}
	if offset+length > dst.Size() {
		return fmt.Errorf("%w: write of %d bytes at %d exceeds %d-byte buffer",
			ErrOverflow, length, offset, dst.Size())
	}
	if !aligned(offset) || !aligned(length) {
		return fmt.Errorf("%w: offset=%d length=%d", ErrUnaligned, offset, length)
	}
	return ctx.WriteBuffer(raw, offset, asBytes(data))
}

// Write is WriteAsync followed by a flush that waits until the data is on
// the device.
func Write[T any](ctx *device.Context, dst Buffer, data []T, start int) error {
	if err := WriteAsync(ctx, dst, data, start); err != nil {
		return err
	}
	return flush(ctx)
}

// flush submits an empty command buffer so pending queue writes execute,
// then waits for it.
func flush(ctx *device.Context) error {
	cb, err := ctx.Encode("buffers.flush", func(hal.CommandEncoder) error { return nil })
	if err != nil {
		return err
	}
	return ctx.SubmitAndWait(cb)
}
