// Package haltest provides a recording hal.Device for tests that need to see
// which resources a package creates and releases.
package haltest

import (
	"sync"
	"testing"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath/device"
)

// Device forwards every call to the wrapped hal.Device and records buffer
// allocations and bind group lifetimes.
type Device struct {
	hal.Device

	mu          sync.Mutex
	bufferSizes []uint64
	groups      int
	destroyed   int
	pipelines   int
}

// Wrap borrows the device of base behind a recording Device. The returned
// Context is destroyed when the test ends.
func Wrap(t testing.TB, base *device.Context, opts ...device.Option) (*device.Context, *Device) {
	t.Helper()
	spy := &Device{Device: base.Device()}
	ctx, err := device.FromHAL(spy, base.Queue(), opts...)
	if err != nil {
		t.Fatalf("haltest: wrap device: %v", err)
	}
	t.Cleanup(ctx.Destroy)
	return ctx, spy
}

func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.mu.Lock()
	d.bufferSizes = append(d.bufferSizes, desc.Size)
	d.mu.Unlock()
	return d.Device.CreateBuffer(desc)
}

func (d *Device) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	g, err := d.Device.CreateBindGroup(desc)
	if err == nil {
		d.mu.Lock()
		d.groups++
		d.mu.Unlock()
	}
	return g, err
}

func (d *Device) DestroyBindGroup(g hal.BindGroup) {
	d.mu.Lock()
	d.destroyed++
	d.mu.Unlock()
	d.Device.DestroyBindGroup(g)
}

func (d *Device) DestroyComputePipeline(p hal.ComputePipeline) {
	d.mu.Lock()
	d.pipelines++
	d.mu.Unlock()
	d.Device.DestroyComputePipeline(p)
}

// BufferSizes returns the sizes passed to CreateBuffer, in call order.
func (d *Device) BufferSizes() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint64(nil), d.bufferSizes...)
}

// BindGroups returns how many bind groups were created.
func (d *Device) BindGroups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.groups
}

// DestroyedBindGroups returns how many bind groups were destroyed.
func (d *Device) DestroyedBindGroups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// DestroyedPipelines returns how many compute pipelines were destroyed.
func (d *Device) DestroyedPipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines
}
