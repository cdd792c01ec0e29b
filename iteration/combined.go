package iteration

import (
	"fmt"

	"github.com/gogpu/gpumath/device"
)

// Submitter submits recorded command buffers. *device.Context implements it.
type Submitter interface {
	SubmitAndWait(cmds ...*device.CommandBuffer) error
	Discard(cmds ...*device.CommandBuffer)
}

// Combined runs every child on the same params.
//
// The synchronous forms collect the command buffers of all children and
// wait for them with a single submission, so they return only after every
// child's device work has completed.
type Combined[P any] struct {
	sub      Submitter
	children []Iteration[P]
	bound    bool
}

// NewCombined returns a Combined iteration submitting through sub.
func NewCombined[P any](sub Submitter, children ...Iteration[P]) *Combined[P] {
	return &Combined[P]{sub: sub, children: append([]Iteration[P](nil), children...)}
}

// Add appends a child.
func (c *Combined[P]) Add(it Iteration[P]) *Combined[P] {
	c.children = append(c.children, it)
	return c
}

// Remove deletes the child at index i. It panics if i is out of range.
func (c *Combined[P]) Remove(i int) *Combined[P] {
	c.children = append(c.children[:i], c.children[i+1:]...)
	return c
}

// Clear removes all children.
func (c *Combined[P]) Clear() *Combined[P] {
	c.children = nil
	return c
}

// Set replaces all children.
func (c *Combined[P]) Set(children []Iteration[P]) *Combined[P] {
	c.children = append([]Iteration[P](nil), children...)
	return c
}

// Len returns the number of children.
func (c *Combined[P]) Len() int { return len(c.children) }

// Bind binds every child to params.
func (c *Combined[P]) Bind(params P) error {
	c.bound = false
	for i, it := range c.children {
		if err := it.Bind(params); err != nil {
			return fmt.Errorf("child %d: %w", i, err)
		}
	}
	c.bound = true
	return nil
}

// Evaluate records every child and waits until all of them completed.
func (c *Combined[P]) Evaluate() error {
	cbs, err := c.EvaluateAsync()
	return c.run(cbs, err)
}

// EvaluateAsync concatenates the children's command buffers.
func (c *Combined[P]) EvaluateAsync() ([]*device.CommandBuffer, error) {
	if !c.bound {
		return nil, ErrNotBound
	}
	var out []*device.CommandBuffer
	for i, it := range c.children {
		cbs, err := it.EvaluateAsync()
		out = append(out, cbs...)
		if err != nil {
			return out, fmt.Errorf("child %d: %w", i, err)
		}
	}
	return out, nil
}

// EvaluateWithParams records every child on params and waits until all of
// them completed.
func (c *Combined[P]) EvaluateWithParams(params P) error {
	cbs, err := c.EvaluateWithParamsAsync(params)
	return c.run(cbs, err)
}

// EvaluateWithParamsAsync concatenates the children's command buffers for
// params.
func (c *Combined[P]) EvaluateWithParamsAsync(params P) ([]*device.CommandBuffer, error) {
	var out []*device.CommandBuffer
	for i, it := range c.children {
		cbs, err := it.EvaluateWithParamsAsync(params)
		out = append(out, cbs...)
		if err != nil {
			return out, fmt.Errorf("child %d: %w", i, err)
		}
	}
	return out, nil
}

// run submits cbs and waits, or discards them when recording failed.
func (c *Combined[P]) run(cbs []*device.CommandBuffer, err error) error {
	if err != nil {
		c.sub.Discard(cbs...)
		return err
	}
	return c.sub.SubmitAndWait(cbs...)
}
