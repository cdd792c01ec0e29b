package problem

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/buffers"
	"github.com/gogpu/gpumath/device"
	"github.com/gogpu/gpumath/iteration"
	"github.com/gogpu/gpumath/shader"
)

// Window is the uniform record a ShaderProblem binds at binding 2.
type Window struct {
	Offset       uint32
	Count        uint32
	VectorLength uint32
	_            uint32
}

func windowOf(p Params) (Window, error) {
	if uint64(p.Offset) > math.MaxUint32 || uint64(p.Count) > math.MaxUint32 || uint64(p.VectorLength) > math.MaxUint32 {
		return Window{}, fmt.Errorf("%w: window does not fit in 32 bits", ErrInvalidParams)
	}
	return Window{
		Offset:       uint32(p.Offset),
		Count:        uint32(p.Count),
		VectorLength: uint32(p.VectorLength),
	}, nil
}

// windowRecord is a window uniform shared by the problem that bound it and
// the command buffers recorded against it.
type windowRecord struct {
	value *buffers.Value
	refs  atomic.Int32
}

func newWindowRecord(ctx *device.Context, w Window) (*windowRecord, error) {
	v, err := buffers.InitValue(ctx, w)
	if err != nil {
		return nil, err
	}
	r := &windowRecord{value: v}
	r.refs.Store(1)
	return r, nil
}

func (r *windowRecord) retain() { r.refs.Add(1) }

func (r *windowRecord) release() {
	if r.refs.Add(-1) == 0 {
		r.value.Destroy()
	}
}

// ShaderProblem evaluates candidates with a compute kernel, one invocation
// per candidate in the window.
//
// The kernel sees, in group 0:
//
//	@binding(0) var<storage, read> solutions
//	@binding(1) var<storage, read_write> results
//	@binding(2) var<uniform> window: Window
//	@binding(3...) the extra bindings, in order
//
// Invocation i scores candidate window.offset + i.
type ShaderProblem struct {
	shader *shader.Shader
	extra  []shader.Binding
	owned  bool

	ctx    *device.Context
	window *windowRecord
	count  int
	bound  bool
}

// NewShaderProblem returns a problem dispatching sh. The caller keeps
// ownership of sh and of the extra bindings.
func NewShaderProblem(sh *shader.Shader, extra ...shader.Binding) *ShaderProblem {
	return &ShaderProblem{shader: sh, extra: extra}
}

// CompileShader returns a compiler for iteration.NewCompiled that builds
// a ShaderProblem from WGSL source on the device of the first params.
func CompileShader(label, source string, extra ...shader.Binding) iteration.Compiler[Params] {
	return iteration.CompilerFunc[Params](func(p Params) (iteration.Iteration[Params], error) {
		if p.Context == nil {
			return nil, fmt.Errorf("%w: no device context", ErrInvalidParams)
		}
		sh, err := shader.New(p.Context, label, source)
		if err != nil {
			return nil, err
		}
		sp := NewShaderProblem(sh, extra...)
		sp.owned = true
		return sp, nil
	})
}

// Shader returns the dispatched kernel.
func (sp *ShaderProblem) Shader() *shader.Shader { return sp.shader }

func (sp *ShaderProblem) bindings(p Params, window *buffers.Value) []shader.Binding {
	out := make([]shader.Binding, 0, 3+len(sp.extra))
	out = append(out, shader.ReadOnly(p.Solutions), p.Results, window)
	return append(out, sp.extra...)
}

// Bind writes a fresh window record and binds the kernel to p's buffers.
// Work recorded by EvaluateAsync keeps its own window until it completes.
func (sp *ShaderProblem) Bind(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	w, err := windowOf(p)
	if err != nil {
		return err
	}
	window, err := newWindowRecord(p.Context, w)
	if err != nil {
		return err
	}
	if err := sp.shader.Bind(sp.bindings(p, window.value)...); err != nil {
		window.release()
		return err
	}
	if sp.window != nil {
		sp.window.release()
	}
	sp.window, sp.ctx = window, p.Context
	sp.count, sp.bound = p.Count, true
	return nil
}

// Evaluate dispatches the bound window and waits.
func (sp *ShaderProblem) Evaluate() error {
	cbs, err := sp.EvaluateAsync()
	if err != nil {
		return err
	}
	return sp.ctx.SubmitAndWait(cbs...)
}

// EvaluateAsync records the bound dispatch.
func (sp *ShaderProblem) EvaluateAsync() ([]*device.CommandBuffer, error) {
	if !sp.bound {
		return nil, iteration.ErrNotBound
	}
	cb, err := sp.shader.ExecuteAsync(gpumath.Len(sp.count))
	if err != nil {
		return nil, err
	}
	window := sp.window
	window.retain()
	cb.OnComplete(window.release)
	return []*device.CommandBuffer{cb}, nil
}

// EvaluateWithParams dispatches p's window once and waits.
func (sp *ShaderProblem) EvaluateWithParams(p Params) error {
	cbs, err := sp.EvaluateWithParamsAsync(p)
	if err != nil {
		return err
	}
	return p.Context.SubmitAndWait(cbs...)
}

// EvaluateWithParamsAsync records one dispatch of p's window. Its window
// record lives until the command buffer completes.
func (sp *ShaderProblem) EvaluateWithParamsAsync(p Params) ([]*device.CommandBuffer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	w, err := windowOf(p)
	if err != nil {
		return nil, err
	}
	window, err := buffers.InitValue(p.Context, w)
	if err != nil {
		return nil, err
	}
	cb, err := sp.shader.ExecuteWithParamsAsync(gpumath.Len(p.Count), sp.bindings(p, window)...)
	if err != nil {
		window.Destroy()
		return nil, err
	}
	cb.OnComplete(window.Destroy)
	return []*device.CommandBuffer{cb}, nil
}

// Destroy releases the window record, and the shader if the problem was
// built by CompileShader.
func (sp *ShaderProblem) Destroy() {
	sp.bound = false
	switch {
	case sp.shader == nil:
	case sp.owned:
		sp.shader.Destroy()
	default:
		sp.shader.Unbind()
	}
	if sp.window != nil {
		sp.window.release()
		sp.window = nil
	}
}
