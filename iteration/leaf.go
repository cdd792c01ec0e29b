package iteration

import (
	"fmt"

	"github.com/gogpu/gpumath/device"
)

// NotImplemented is a placeholder stage. Every operation fails with
// ErrNotImplemented and the configured message.
type NotImplemented[P any] struct {
	Message string
}

// NewNotImplemented returns a placeholder that fails with msg.
func NewNotImplemented[P any](msg string) *NotImplemented[P] {
	return &NotImplemented[P]{Message: msg}
}

func (n *NotImplemented[P]) err() error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, n.Message)
}

func (n *NotImplemented[P]) Bind(P) error   { return n.err() }
func (n *NotImplemented[P]) Evaluate() error { return n.err() }

func (n *NotImplemented[P]) EvaluateAsync() ([]*device.CommandBuffer, error) {
	return nil, n.err()
}

func (n *NotImplemented[P]) EvaluateWithParams(P) error { return n.err() }

func (n *NotImplemented[P]) EvaluateWithParamsAsync(P) ([]*device.CommandBuffer, error) {
	return nil, n.err()
}

// Funcs builds a leaf Iteration from functions.
//
// Bind always records params; BindFunc, if set, is called afterwards.
// Evaluate and EvaluateAsync fall back to the WithParams forms with the
// bound params. EvaluateWithParamsAsync falls back to running
// EvaluateWithParams synchronously and returning no command buffers, which
// suits host-side steps. EvaluateWithParams without a function fails with
// ErrNotImplemented.
type Funcs[P any] struct {
	BindFunc                    func(params P) error
	EvaluateFunc                func(params P) error
	EvaluateAsyncFunc           func(params P) ([]*device.CommandBuffer, error)
	EvaluateWithParamsFunc      func(params P) error
	EvaluateWithParamsAsyncFunc func(params P) ([]*device.CommandBuffer, error)

	params P
	bound  bool
}

// Bind records params and calls BindFunc.
func (f *Funcs[P]) Bind(params P) error {
	f.params, f.bound = params, true
	if f.BindFunc != nil {
		return f.BindFunc(params)
	}
	return nil
}

// Evaluate runs EvaluateFunc, or EvaluateWithParams, on the bound params.
func (f *Funcs[P]) Evaluate() error {
	if !f.bound {
		return ErrNotBound
	}
	if f.EvaluateFunc != nil {
		return f.EvaluateFunc(f.params)
	}
	return f.EvaluateWithParams(f.params)
}

// EvaluateAsync runs EvaluateAsyncFunc, or EvaluateWithParamsAsync, on the
// bound params.
func (f *Funcs[P]) EvaluateAsync() ([]*device.CommandBuffer, error) {
	if !f.bound {
		return nil, ErrNotBound
	}
	if f.EvaluateAsyncFunc != nil {
		return f.EvaluateAsyncFunc(f.params)
	}
	return f.EvaluateWithParamsAsync(f.params)
}

// EvaluateWithParams runs EvaluateWithParamsFunc.
func (f *Funcs[P]) EvaluateWithParams(params P) error {
	if f.EvaluateWithParamsFunc == nil {
		return fmt.Errorf("%w: no evaluate function", ErrNotImplemented)
	}
	return f.EvaluateWithParamsFunc(params)
}

// EvaluateWithParamsAsync runs EvaluateWithParamsAsyncFunc, or
// EvaluateWithParams synchronously.
func (f *Funcs[P]) EvaluateWithParamsAsync(params P) ([]*device.CommandBuffer, error) {
	if f.EvaluateWithParamsAsyncFunc != nil {
		return f.EvaluateWithParamsAsyncFunc(params)
	}
	return nil, f.EvaluateWithParams(params)
}

var (
	_ Iteration[Range] = (*Sliced[Range])(nil)
	_ Iteration[Range] = (*Combined[Range])(nil)
	_ Iteration[Range] = (*Compiled[Range])(nil)
	_ Iteration[Range] = (*NotImplemented[Range])(nil)
	_ Iteration[Range] = (*Funcs[Range])(nil)
)
