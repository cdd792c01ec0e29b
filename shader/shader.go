// Package shader runs WGSL compute kernels against typed buffers.
//
// A Shader owns a compiled kernel and, optionally, a persistent set of
// buffer bindings. Bound execution reuses that set; parameterized execution
// builds a transient set for one dispatch and leaves the bound one alone.
// Each form has an Async twin that returns an unsubmitted
// device.CommandBuffer instead of waiting.
//
// The kernel entry point must be named "main" and all bindings live in
// group 0, at the index of their position in the binding list.
//
// Binding sets and pipelines referenced by recorded command buffers stay
// alive until those buffers complete or are discarded, even across Bind,
// Unbind and Destroy.
//
// A Shader is not safe for concurrent use.
package shader

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/buffers"
	"github.com/gogpu/gpumath/device"
	"github.com/gogpu/gpumath/internal/spirv"
)

// EntryPoint is the kernel function every shader must export.
const EntryPoint = "main"

var (
	// ErrUnbound is returned by Execute and ExecuteAsync when no binding
	// set has been bound.
	ErrUnbound = errors.New("shader: no bindings bound")

	// ErrInvalidSize is returned for dispatch sizes with a negative
	// dimension or one above the device's workgroup limit.
	ErrInvalidSize = errors.New("shader: invalid dispatch size")

	// ErrDestroyed is returned when using a destroyed shader.
	ErrDestroyed = errors.New("shader: destroyed")
)

// Binding is a buffer that can be bound to a kernel.
// *buffers.Storage binds as read-write storage, *buffers.Value as a
// uniform; ReadOnly wraps a buffer as read-only storage.
type Binding interface {
	buffers.Buffer
	BindingType() gputypes.BufferBindingType
}

type readOnly struct {
	buffers.Buffer
}

func (readOnly) BindingType() gputypes.BufferBindingType {
	return gputypes.BufferBindingTypeReadOnlyStorage
}

// ReadOnly binds b as read-only storage, matching a
// var<storage, read> declaration.
func ReadOnly(b buffers.Buffer) Binding {
	return readOnly{Buffer: b}
}

// Shader is a compiled compute kernel with an optional bound binding set.
type Shader struct {
	ctx    *device.Context
	label  string
	module hal.ShaderModule

	// pipelines are built per binding layout on first use.
	pipelines map[string]*pipeline
	bound     *bindSet

	destroyed bool
	// refs counts the owner plus every recorded command buffer that has
	// not completed. Pipelines and the module are freed at zero.
	refs atomic.Int32
}

type pipeline struct {
	groupLayout hal.BindGroupLayout
	layout      hal.PipelineLayout
	compute     hal.ComputePipeline
}

// bindSet is a bind group shared by its creator and the command buffers
// recorded against it.
type bindSet struct {
	dev   hal.Device
	pipe  *pipeline
	group hal.BindGroup
	refs  atomic.Int32
}

func (b *bindSet) retain() { b.refs.Add(1) }

func (b *bindSet) release() {
	if b.refs.Add(-1) == 0 {
		b.dev.DestroyBindGroup(b.group)
	}
}

// New compiles WGSL source into a kernel. Compile errors are returned
// with the label attached.
func New(ctx *device.Context, label, source string) (*Shader, error) {
	words, err := spirv.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader %q: %w", label, err)
	}
	module, err := ctx.Device().CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("shader %q: create module: %w", label, err)
	}
	s := &Shader{
		ctx:       ctx,
		label:     label,
		module:    module,
		pipelines: make(map[string]*pipeline),
	}
	s.refs.Store(1)
	return s, nil
}

// MustNew is like New but panics on a compile error.
func MustNew(ctx *device.Context, label, source string) *Shader {
	s, err := New(ctx, label, source)
	if err != nil {
		panic(err)
	}
	return s
}

// Label returns the debug label.
func (s *Shader) Label() string { return s.label }

// IsBound reports whether a binding set is bound.
func (s *Shader) IsBound() bool { return s.bound != nil }

// Bind replaces the bound binding set. Binding i of group 0 is bindings[i].
// Work already recorded against the previous set keeps it alive.
func (s *Shader) Bind(bindings ...Binding) error {
	set, err := s.newBindSet(s.label+".bound", bindings)
	if err != nil {
		return err
	}
	s.Unbind()
	s.bound = set
	return nil
}

// Unbind drops the bound binding set, if any. The set is destroyed once no
// recorded command buffer uses it.
func (s *Shader) Unbind() {
	if s.bound == nil {
		return
	}
	s.bound.release()
	s.bound = nil
}

// Execute dispatches size invocations against the bound set and waits for
// completion.
func (s *Shader) Execute(size gpumath.Size) error {
	cb, err := s.ExecuteAsync(size)
	if err != nil {
		return err
	}
	return s.ctx.SubmitAndWait(cb)
}

// ExecuteAsync records a dispatch against the bound set without submitting.
func (s *Shader) ExecuteAsync(size gpumath.Size) (*device.CommandBuffer, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.bound == nil {
		return nil, fmt.Errorf("shader %q: %w", s.label, ErrUnbound)
	}
	return s.record(size, s.bound)
}

// ExecuteWithParams dispatches against a one-off binding set and waits for
// completion. The bound set is not touched.
func (s *Shader) ExecuteWithParams(size gpumath.Size, bindings ...Binding) error {
	cb, err := s.ExecuteWithParamsAsync(size, bindings...)
	if err != nil {
		return err
	}
	return s.ctx.SubmitAndWait(cb)
}

// ExecuteWithParamsAsync records a dispatch against a one-off binding set.
// The set is released when the command buffer completes or is discarded.
func (s *Shader) ExecuteWithParamsAsync(size gpumath.Size, bindings ...Binding) (*device.CommandBuffer, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	set, err := s.newBindSet(s.label+".params", bindings)
	if err != nil {
		return nil, err
	}
	// The command buffer holds the only reference past this point.
	defer set.release()
	return s.record(size, set)
}

// record encodes one dispatch against set. On success the command buffer
// holds a reference to set and to s until it completes or is discarded.
func (s *Shader) record(size gpumath.Size, set *bindSet) (*device.CommandBuffer, error) {
	x, y, z, err := dispatchGrid(size, s.ctx.Limits().MaxComputeWorkgroupsPerDimension)
	if err != nil {
		return nil, err
	}
	gpumath.Logger().Debug("shader: dispatch", "label", s.label, "grid", size.String())
	cb, err := s.ctx.Encode(s.label, func(enc hal.CommandEncoder) error {
		if x == 0 || y == 0 || z == 0 {
			return nil
		}
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: s.label})
		pass.SetPipeline(set.pipe.compute)
		pass.SetBindGroup(0, set.group, nil)
		pass.Dispatch(x, y, z)
		pass.End()
		return nil
	})
	if err != nil {
		return nil, err
	}
	set.retain()
	s.refs.Add(1)
	cb.OnComplete(func() {
		set.release()
		s.release()
	})
	return cb, nil
}

// dispatchGrid converts size to workgroup counts. limit is the device's
// maximum per dimension; zero means the device reported none.
func dispatchGrid(size gpumath.Size, limit uint32) (x, y, z uint32, err error) {
	maxDim := uint64(math.MaxUint32)
	if limit != 0 {
		maxDim = uint64(limit)
	}
	dims := [3]int{size.Width, size.Height, size.Depth}
	var out [3]uint32
	for i, d := range dims {
		if d < 0 || uint64(d) > maxDim {
			return 0, 0, 0, fmt.Errorf("%w: %s exceeds %d workgroups per dimension", ErrInvalidSize, size, maxDim)
		}
		out[i] = uint32(d)
	}
	return out[0], out[1], out[2], nil
}

// newBindSet creates a set holding one reference, owned by the caller.
func (s *Shader) newBindSet(label string, bindings []Binding) (*bindSet, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	pipe, err := s.pipelineFor(bindings)
	if err != nil {
		return nil, err
	}
	entries := make([]gputypes.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		raw := b.Raw()
		if raw == nil {
			return nil, fmt.Errorf("shader %q: binding %d: %w", s.label, i, buffers.ErrDestroyed)
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.BufferBinding{Buffer: raw.NativeHandle(), Offset: 0, Size: buffers.BindingSize(b)},
		}
	}
	group, err := s.ctx.Device().CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  pipe.groupLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("shader %q: create bind group: %w", s.label, err)
	}
	set := &bindSet{dev: s.ctx.Device(), pipe: pipe, group: group}
	set.refs.Store(1)
	return set, nil
}

// signature identifies a binding layout, e.g. "r,s,u".
func signature(bindings []Binding) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		switch b.BindingType() {
		case gputypes.BufferBindingTypeUniform:
			parts[i] = "u"
		case gputypes.BufferBindingTypeReadOnlyStorage:
			parts[i] = "r"
		default:
			parts[i] = "s"
		}
	}
	return strings.Join(parts, ",")
}

func (s *Shader) pipelineFor(bindings []Binding) (*pipeline, error) {
	key := signature(bindings)
	if p, ok := s.pipelines[key]; ok {
		return p, nil
	}

	dev := s.ctx.Device()
	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: b.BindingType()},
		}
	}
	groupLayout, err := dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   s.label + ".bgl",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("shader %q: create bind group layout: %w", s.label, err)
	}
	layout, err := dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            s.label + ".layout",
		BindGroupLayouts: []hal.BindGroupLayout{groupLayout},
	})
	if err != nil {
		dev.DestroyBindGroupLayout(groupLayout)
		return nil, fmt.Errorf("shader %q: create pipeline layout: %w", s.label, err)
	}
	compute, err := dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   s.label,
		Layout:  layout,
		Compute: hal.ComputeState{Module: s.module, EntryPoint: EntryPoint},
	})
	if err != nil {
		dev.DestroyPipelineLayout(layout)
		dev.DestroyBindGroupLayout(groupLayout)
		return nil, fmt.Errorf("shader %q: create compute pipeline: %w", s.label, err)
	}

	p := &pipeline{groupLayout: groupLayout, layout: layout, compute: compute}
	s.pipelines[key] = p
	gpumath.Logger().Debug("shader: pipeline created", "label", s.label, "layout", key)
	return p, nil
}

// Pipelines returns how many binding layouts have been compiled.
func (s *Shader) Pipelines() int { return len(s.pipelines) }

// Destroy releases the bound set, pipelines and kernel module. Resources
// still used by recorded work are freed when that work completes, through
// device.Context.Poll or Discard.
func (s *Shader) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.Unbind()
	s.release()
}

func (s *Shader) release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	dev := s.ctx.Device()
	for key, p := range s.pipelines {
		dev.DestroyComputePipeline(p.compute)
		dev.DestroyPipelineLayout(p.layout)
		dev.DestroyBindGroupLayout(p.groupLayout)
		delete(s.pipelines, key)
	}
	dev.DestroyShaderModule(s.module)
	s.module = nil
}
