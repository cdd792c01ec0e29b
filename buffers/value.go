package buffers

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath/device"
)

// uniformAlignment is the size granularity of uniform bindings.
const uniformAlignment = 16

// Value holds one fixed-layout record of a parameter type. It binds as a
// uniform and is padded to a multiple of 16 bytes.
type Value struct {
	ctx  *device.Context
	buf  hal.Buffer
	size uint64
}

// NewValue allocates a value buffer for one T.
func NewValue[T any](ctx *device.Context) (*Value, error) {
	size, err := countBytes[T](1)
	if err != nil {
		return nil, err
	}
	size = alignUp(size, uniformAlignment)
	buf, err := allocate(ctx, "value", size,
		gputypes.BufferUsageStorage|gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	return &Value{ctx: ctx, buf: buf, size: size}, nil
}

// InitValue allocates a value buffer and writes v into it.
func InitValue[T any](ctx *device.Context, v T) (*Value, error) {
	b, err := NewValue[T](ctx)
	if err != nil {
		return nil, err
	}
	if err := Set(ctx, b, v); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// Set writes v to the start of b without waiting. The new value is visible
// to work submitted afterwards.
func Set[T any](ctx *device.Context, b *Value, v T) error {
	return WriteAsync(ctx, b, []T{v}, 0)
}

// Raw returns the HAL buffer.
func (v *Value) Raw() hal.Buffer { return v.buf }

// Size returns the padded size in bytes.
func (v *Value) Size() uint64 { return v.size }

// IsEmpty reports whether the buffer holds no bytes. A Value always holds
// one record.
func (v *Value) IsEmpty() bool { return v.size == 0 }

// BindingType reports how the buffer binds to a shader.
func (v *Value) BindingType() gputypes.BufferBindingType {
	return gputypes.BufferBindingTypeUniform
}

// Destroy releases the device memory. Destroy is idempotent.
func (v *Value) Destroy() {
	if v.buf == nil {
		return
	}
	v.ctx.Device().DestroyBuffer(v.buf)
	v.buf = nil
}
