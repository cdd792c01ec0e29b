package buffers

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/device"
)

const readbackUsage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst

// Readback is a host-readable staging buffer. It grows with Scale and never
// shrinks.
type Readback struct {
	ctx  *device.Context
	buf  hal.Buffer
	size uint64
}

// NewReadback allocates a readback buffer for count elements of T.
func NewReadback[T any](ctx *device.Context, count int) (*Readback, error) {
	size, err := countBytes[T](count)
	if err != nil {
		return nil, err
	}
	buf, err := allocate(ctx, "readback", size, readbackUsage)
	if err != nil {
		return nil, err
	}
	return &Readback{ctx: ctx, buf: buf, size: size}, nil
}

// Raw returns the HAL buffer.
func (r *Readback) Raw() hal.Buffer { return r.buf }

// Size returns the size in bytes.
func (r *Readback) Size() uint64 { return r.size }

// IsEmpty reports whether the buffer holds no bytes.
func (r *Readback) IsEmpty() bool { return r.size == 0 }

// Scale makes r hold at least minCount elements of T. It reallocates only
// when the current capacity is too small and reports whether it did.
// Reallocation does not preserve previous contents.
func Scale[T any](r *Readback, minCount int) (bool, error) {
	need, err := countBytes[T](minCount)
	if err != nil {
		return false, err
	}
	if need <= r.size && r.buf != nil {
		return false, nil
	}
	buf, err := allocate(r.ctx, "readback", need, readbackUsage)
	if err != nil {
		return false, err
	}
	if r.buf != nil {
		r.ctx.Device().DestroyBuffer(r.buf)
	}
	gpumath.Logger().Debug("buffers: readback scaled", "from", r.size, "to", need)
	r.buf, r.size = buf, need
	return true, nil
}

// Read copies count elements of T starting at element start of src into r
// and returns them. It blocks until the copy has completed: the copy is
// ordered after every write to src submitted earlier on the same queue.
//
// The window must lie inside src, and r must be large enough for count
// elements; see Scale.
func Read[T any](r *Readback, src Buffer, start, count int) ([]T, error) {
	elem, err := elemSize[T]()
	if err != nil {
		return nil, err
	}
	offset, length, err := byteSpan(elem, start, count)
	if err != nil {
		return nil, err
	}
	if offset+length > src.Size() {
		return nil, fmt.Errorf("%w: read of elements [%d, %d) from %d-byte source",
			ErrOutOfBounds, start, start+count, src.Size())
	}
	if length > r.size {
		return nil, fmt.Errorf("%w: readback holds %d bytes, need %d",
			ErrOutOfBounds, r.size, length)
	}
	if count == 0 {
		return []T{}, nil
	}
	if !aligned(offset) || !aligned(length) {
		return nil, fmt.Errorf("%w: offset=%d length=%d", ErrUnaligned, offset, length)
	}
	raw := src.Raw()
	if raw == nil || r.buf == nil {
		return nil, ErrDestroyed
	}

	cb, err := r.ctx.Encode("buffers.read", func(enc hal.CommandEncoder) error {
		enc.CopyBufferToBuffer(raw, r.buf, []hal.BufferCopy{{
			SrcOffset: offset,
			DstOffset: 0,
			Size:      length,
		}})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.ctx.SubmitAndWait(cb); err != nil {
		return nil, err
	}

	out := make([]T, count)
	if err := r.ctx.ReadBuffer(r.buf, 0, asBytes(out)); err != nil {
		return nil, err
	}
	return out, nil
}

// Destroy releases the device memory. Destroy is idempotent.
func (r *Readback) Destroy() {
	if r.buf == nil {
		return
	}
	r.ctx.Device().DestroyBuffer(r.buf)
	r.buf = nil
}
