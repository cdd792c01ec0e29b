package buffers

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath/device"
)

// Storage is a device-resident read/write buffer. Its size is fixed at
// creation to exactly count elements.
type Storage struct {
	ctx   *device.Context
	buf   hal.Buffer
	size  uint64
	label string
}

// NewStorage allocates a storage buffer holding count elements of T.
func NewStorage[T any](ctx *device.Context, count int) (*Storage, error) {
	return NewStorageLabeled[T](ctx, "storage", count)
}

// NewStorageLabeled is NewStorage with a debug label.
func NewStorageLabeled[T any](ctx *device.Context, label string, count int) (*Storage, error) {
	size, err := countBytes[T](count)
	if err != nil {
		return nil, err
	}
	buf, err := allocate(ctx, label, size,
		gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	return &Storage{ctx: ctx, buf: buf, size: size, label: label}, nil
}

// InitStorage allocates a storage buffer sized for data and writes it.
func InitStorage[T any](ctx *device.Context, data []T) (*Storage, error) {
	s, err := NewStorage[T](ctx, len(data))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := Write(ctx, s, data, 0); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Raw returns the HAL buffer.
func (s *Storage) Raw() hal.Buffer { return s.buf }

// Size returns the size in bytes.
func (s *Storage) Size() uint64 { return s.size }

// IsEmpty reports whether the buffer holds no bytes.
func (s *Storage) IsEmpty() bool { return s.size == 0 }

// Label returns the debug label.
func (s *Storage) Label() string { return s.label }

// BindingType reports how the buffer binds to a shader.
func (s *Storage) BindingType() gputypes.BufferBindingType {
	return gputypes.BufferBindingTypeStorage
}

// Destroy releases the device memory. Destroy is idempotent.
func (s *Storage) Destroy() {
	if s.buf == nil {
		return
	}
	s.ctx.Device().DestroyBuffer(s.buf)
	s.buf = nil
}
