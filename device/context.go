// Package device owns the GPU handle pair (device and queue) every other
// gpumath package works against.
//
// A Context is created once, either synchronously with New or in the
// background with NewAsync, and then passed by pointer to buffers, shaders
// and iterations. It is safe for concurrent use.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan backend with the HAL registry.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/gpumath"
)

// Errors returned by Context creation and submission.
var (
	// ErrNoBackend is returned when the requested HAL backend is not
	// registered on this platform.
	ErrNoBackend = errors.New("device: backend not available")

	// ErrNoAdapter is returned when the backend reports no usable adapter.
	ErrNoAdapter = errors.New("device: no GPU adapter found")

	// ErrDestroyed is returned by operations on a destroyed Context.
	ErrDestroyed = errors.New("device: context destroyed")

	// ErrTimeout is returned by Poll when submitted work did not complete
	// within the configured poll timeout.
	ErrTimeout = errors.New("device: timed out waiting for GPU")

	// ErrNilProvider is returned by FromProvider for a nil provider or one
	// that does not expose HAL handles.
	ErrNilProvider = errors.New("device: provider does not expose HAL device")
)

// Context is a compute device together with its submission queue.
//
// Work is recorded into CommandBuffers with Encode, handed to the GPU with
// Submit and completed with Poll. A single fence tracks every submission, so
// Poll always waits for all work submitted so far.
type Context struct {
	label       string
	instance    hal.Instance // nil when the device is borrowed
	device      hal.Device
	queue       hal.Queue
	adapter     string
	external    bool
	pollTimeout time.Duration
	limits      gputypes.Limits

	mu        sync.Mutex
	fence     hal.Fence
	submitted uint64
	completed uint64
	inflight  []*CommandBuffer
	destroyed bool
}

// Result is delivered by NewAsync once acquisition finishes.
type Result struct {
	Context *Context
	Err     error
}

// NewAsync starts acquiring a device in the background. The returned channel
// receives exactly one Result and is then closed.
func NewAsync(opts ...Option) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		c, err := open(opts...)
		ch <- Result{Context: c, Err: err}
	}()
	return ch
}

// New acquires a compute device and its queue.
//
// If ctx is cancelled before acquisition completes, New returns ctx.Err()
// and the device acquired later is released in the background.
func New(ctx context.Context, opts ...Option) (*Context, error) {
	ch := NewAsync(opts...)
	select {
	case r := <-ch:
		return r.Context, r.Err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.Context != nil {
				r.Context.Destroy()
			}
		}()
		return nil, ctx.Err()
	}
}

// MustNew is like New but panics if no device can be acquired.
func MustNew(opts ...Option) *Context {
	c, err := New(context.Background(), opts...)
	if err != nil {
		panic(fmt.Sprintf("device: %v", err))
	}
	return c
}

var (
	defaultMu  sync.Mutex
	defaultCtx *Context
)

// Default returns a process-wide Context, acquiring it on first use.
// A failed acquisition is not cached; the next call tries again.
// The default Context is never destroyed.
func Default() (*Context, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCtx != nil {
		return defaultCtx, nil
	}
	c, err := New(context.Background())
	if err != nil {
		return nil, err
	}
	defaultCtx = c
	return c, nil
}

// open runs the instance, adapter and device acquisition sequence.
func open(opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	creator := o.creator
	if creator == nil {
		backend, ok := hal.GetBackend(o.backend)
		if !ok {
			return nil, fmt.Errorf("%w: %v", ErrNoBackend, o.backend)
		}
		creator = backend
	}

	instance, err := creator.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("device: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := pickAdapter(adapters, o.preference)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), o.limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("device: open adapter %q: %w", selected.Info.Name, err)
	}

	c, err := newContext(openDev.Device, openDev.Queue, o)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	c.instance = instance
	c.adapter = selected.Info.Name

	gpumath.Logger().Info("device: acquired",
		"label", c.label,
		"adapter", c.adapter,
		"type", fmt.Sprint(selected.Info.DeviceType))
	return c, nil
}

// pickAdapter returns the adapter the preference selects. adapters must not
// be empty.
func pickAdapter(adapters []hal.ExposedAdapter, pref AdapterPreference) *hal.ExposedAdapter {
	if pref == PreferHardware {
		for i := range adapters {
			switch adapters[i].Info.DeviceType {
			case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
				return &adapters[i]
			}
		}
	}
	return &adapters[0]
}

// FromHAL wraps an existing HAL device and queue. The caller keeps ownership
// of both: Destroy releases only what the Context created itself.
func FromHAL(device hal.Device, queue hal.Queue, opts ...Option) (*Context, error) {
	if device == nil || queue == nil {
		return nil, ErrNilProvider
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c, err := newContext(device, queue, o)
	if err != nil {
		return nil, err
	}
	c.external = true
	c.adapter = "external"
	return c, nil
}

// halProvider is implemented by gpucontext providers backed by wgpu.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider borrows the device of a host application that already owns
// one, for example a gogpu window.
func FromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNilProvider
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, ErrNilProvider
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, ErrNilProvider
	}
	return FromHAL(dev, queue, opts...)
}

func newContext(device hal.Device, queue hal.Queue, o options) (*Context, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("device: create fence: %w", err)
	}
	return &Context{
		label:       o.label,
		device:      device,
		queue:       queue,
		pollTimeout: o.pollTimeout,
		limits:      o.limits,
		fence:       fence,
	}, nil
}

// Device returns the underlying HAL device.
func (c *Context) Device() hal.Device { return c.device }

// Queue returns the underlying HAL queue.
func (c *Context) Queue() hal.Queue { return c.queue }

// Label returns the debug label.
func (c *Context) Label() string { return c.label }

// AdapterName returns the name of the adapter the device was opened on.
func (c *Context) AdapterName() string { return c.adapter }

// External reports whether the device is borrowed from another owner.
func (c *Context) External() bool { return c.external }

// Limits returns the limits the device was opened with. For a borrowed
// device these are the limits passed with WithLimits, or the defaults.
func (c *Context) Limits() gputypes.Limits { return c.limits }

// Destroy waits for outstanding work and releases the fence. The device and
// instance are released too unless the Context was created by FromHAL or
// FromProvider. Destroy is idempotent.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if err := c.pollLocked(); err != nil {
		gpumath.Logger().Warn("device: destroy with unfinished work", "label", c.label, "err", err)
	}
	c.destroyed = true
	if c.fence != nil {
		c.device.DestroyFence(c.fence)
		c.fence = nil
	}
	if c.external {
		return
	}
	c.device.Destroy()
	if c.instance != nil {
		c.instance.Destroy()
		c.instance = nil
	}
	gpumath.Logger().Info("device: destroyed", "label", c.label)
}
