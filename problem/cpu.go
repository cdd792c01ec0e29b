package problem

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/gogpu/gpumath/buffers"
	"github.com/gogpu/gpumath/device"
	"github.com/gogpu/gpumath/iteration"
)

// Solver scores candidates on the host. solutions holds params.Count
// candidates of params.VectorLength elements each; the result must hold one
// fitness value per candidate.
type Solver[T, O any] func(solutions []T, options O, params Params) ([]float32, error)

// CPUProblem scores candidates with a Go function.
//
// Every evaluation copies the window's candidates to the host through a
// readback buffer that grows as needed, runs the solver and writes the
// fitness values back at Offset. Async forms run synchronously and return
// no command buffers.
type CPUProblem[T, O any] struct {
	Solver  Solver[T, O]
	Options O

	reader    *buffers.Readback
	readerCtx *device.Context
	params    Params
	bound     bool
}

// NewCPUProblem returns a host-evaluated problem.
func NewCPUProblem[T, O any](solver Solver[T, O], options O) *CPUProblem[T, O] {
	return &CPUProblem[T, O]{Solver: solver, Options: options}
}

// Bind records p for Evaluate.
func (c *CPUProblem[T, O]) Bind(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.params, c.bound = p, true
	return nil
}

// Evaluate scores the bound window.
func (c *CPUProblem[T, O]) Evaluate() error {
	if !c.bound {
		return iteration.ErrNotBound
	}
	return c.evaluate(c.params)
}

// EvaluateAsync scores the bound window synchronously.
func (c *CPUProblem[T, O]) EvaluateAsync() ([]*device.CommandBuffer, error) {
	return nil, c.Evaluate()
}

// EvaluateWithParams scores p's window.
func (c *CPUProblem[T, O]) EvaluateWithParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return c.evaluate(p)
}

// EvaluateWithParamsAsync scores p's window synchronously.
func (c *CPUProblem[T, O]) EvaluateWithParamsAsync(p Params) ([]*device.CommandBuffer, error) {
	return nil, c.EvaluateWithParams(p)
}

func (c *CPUProblem[T, O]) evaluate(p Params) error {
	if p.Count == 0 {
		return nil
	}
	start, ok := mulInt(p.Offset, p.VectorLength)
	if !ok {
		return fmt.Errorf("%w: solution offset overflows", ErrInvalidParams)
	}
	n, ok := mulInt(p.Count, p.VectorLength)
	if !ok {
		return fmt.Errorf("%w: solution count overflows", ErrInvalidParams)
	}

	reader, err := c.readerFor(p.Context, n)
	if err != nil {
		return err
	}
	solutions, err := buffers.Read[T](reader, p.Solutions, start, n)
	if err != nil {
		return fmt.Errorf("problem: read solutions: %w", err)
	}
	results, err := c.Solver(solutions, c.Options, p)
	if err != nil {
		return fmt.Errorf("problem: solver: %w", err)
	}
	if len(results) != p.Count {
		return fmt.Errorf("problem: solver returned %d results for %d candidates", len(results), p.Count)
	}
	return buffers.Write(p.Context, p.Results, results, p.Offset)
}

// readerFor returns a readback buffer on ctx holding at least n elements.
func (c *CPUProblem[T, O]) readerFor(ctx *device.Context, n int) (*buffers.Readback, error) {
	if c.reader != nil && c.readerCtx == ctx {
		if _, err := buffers.Scale[T](c.reader, n); err != nil {
			return nil, err
		}
		return c.reader, nil
	}
	if c.reader != nil {
		c.reader.Destroy()
	}
	reader, err := buffers.NewReadback[T](ctx, n)
	if err != nil {
		return nil, err
	}
	c.reader, c.readerCtx = reader, ctx
	return reader, nil
}

// Destroy releases the readback buffer.
func (c *CPUProblem[T, O]) Destroy() {
	if c.reader != nil {
		c.reader.Destroy()
		c.reader = nil
	}
}

func mulInt(a, b int) (int, bool) {
	hi, lo := bits.Mul(uint(a), uint(b))
	if hi != 0 || lo > math.MaxInt {
		return 0, false
	}
	return int(lo), true
}

var (
	_ iteration.Iteration[Params] = (*ShaderProblem)(nil)
	_ iteration.Iteration[Params] = (*CPUProblem[float32, struct{}])(nil)
	_ iteration.Ranged[Params]    = Params{}
)
