package iteration

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpumath/device"
)

// Compiler builds a concrete iteration from a sample of its params.
type Compiler[P any] interface {
	Compile(params P) (Iteration[P], error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc[P any] func(params P) (Iteration[P], error)

// Compile calls f(params).
func (f CompilerFunc[P]) Compile(params P) (Iteration[P], error) { return f(params) }

// Compiled defers building its iteration until params are first seen.
//
// The first Bind, EvaluateWithParams or EvaluateWithParamsAsync compiles
// with those params and forwards the call to the result. Every later call
// goes straight to the compiled iteration; the compiler is dropped and never
// invoked again. Evaluate and EvaluateAsync fail with ErrNotCompiled until
// then.
type Compiled[P any] struct {
	compiler Compiler[P]
	compiled Iteration[P]
}

// NewCompiled returns a Compiled iteration that builds itself with c.
func NewCompiled[P any](c Compiler[P]) *Compiled[P] {
	return &Compiled[P]{compiler: c}
}

// IsCompiled reports whether the iteration has been built.
func (c *Compiled[P]) IsCompiled() bool { return c.compiled != nil }

// Iteration returns the compiled iteration, or nil before compilation.
func (c *Compiled[P]) Iteration() Iteration[P] { return c.compiled }

func (c *Compiled[P]) compile(params P) (Iteration[P], error) {
	if c.compiled != nil {
		return c.compiled, nil
	}
	if c.compiler == nil {
		return nil, errors.New("iteration: compiled without a compiler")
	}
	it, err := c.compiler.Compile(params)
	if err != nil {
		return nil, fmt.Errorf("iteration: compile: %w", err)
	}
	if it == nil {
		return nil, errors.New("iteration: compile returned no iteration")
	}
	c.compiled, c.compiler = it, nil
	return it, nil
}

// Bind compiles on first use and binds the compiled iteration.
func (c *Compiled[P]) Bind(params P) error {
	it, err := c.compile(params)
	if err != nil {
		return err
	}
	return it.Bind(params)
}

// Evaluate evaluates the compiled iteration.
func (c *Compiled[P]) Evaluate() error {
	if c.compiled == nil {
		return ErrNotCompiled
	}
	return c.compiled.Evaluate()
}

// EvaluateAsync records the compiled iteration.
func (c *Compiled[P]) EvaluateAsync() ([]*device.CommandBuffer, error) {
	if c.compiled == nil {
		return nil, ErrNotCompiled
	}
	return c.compiled.EvaluateAsync()
}

// EvaluateWithParams compiles on first use and evaluates with params.
func (c *Compiled[P]) EvaluateWithParams(params P) error {
	it, err := c.compile(params)
	if err != nil {
		return err
	}
	return it.EvaluateWithParams(params)
}

// EvaluateWithParamsAsync compiles on first use and records with params.
func (c *Compiled[P]) EvaluateWithParamsAsync(params P) ([]*device.CommandBuffer, error) {
	it, err := c.compile(params)
	if err != nil {
		return nil, err
	}
	return it.EvaluateWithParamsAsync(params)
}
