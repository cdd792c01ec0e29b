package device

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumath"
)

// CommandBuffer is recorded GPU work that has not necessarily been submitted.
//
// CommandBuffers are produced by Encode, handed to Submit and released by the
// Poll that observes their completion. Resources attached with OnComplete
// (transient bind groups, staging buffers) stay alive until then.
type CommandBuffer struct {
	label   string
	raw     hal.CommandBuffer
	release []func()
	state   cmdState
}

type cmdState uint8

const (
	cmdRecorded cmdState = iota
	cmdSubmitted
	cmdDone
)

// Label returns the debug label the buffer was encoded with.
func (cb *CommandBuffer) Label() string { return cb.label }

// Submitted reports whether the buffer has been handed to the queue.
func (cb *CommandBuffer) Submitted() bool { return cb.state >= cmdSubmitted }

// Done reports whether the GPU finished the buffer.
func (cb *CommandBuffer) Done() bool { return cb.state == cmdDone }

// OnComplete registers fn to run once the buffer finished executing, or
// when it is discarded without being submitted.
func (cb *CommandBuffer) OnComplete(fn func()) {
	cb.release = append(cb.release, fn)
}

func (cb *CommandBuffer) finish(device hal.Device) {
	if cb.raw != nil {
		device.FreeCommandBuffer(cb.raw)
		cb.raw = nil
	}
	for i := len(cb.release) - 1; i >= 0; i-- {
		cb.release[i]()
	}
	cb.release = nil
	cb.state = cmdDone
}

// Encode records commands into a new CommandBuffer. If record returns an
// error the encoding is discarded and the error is returned unchanged. A
// failure to begin or end the encoding also discards it.
func (c *Context) Encode(label string, record func(enc hal.CommandEncoder) error) (*CommandBuffer, error) {
	if c.isDestroyed() {
		return nil, ErrDestroyed
	}
	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("device: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("device: begin encoding: %w", err)
	}
	if err := record(encoder); err != nil {
		encoder.DiscardEncoding()
		return nil, err
	}
	raw, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("device: end encoding: %w", err)
	}
	return &CommandBuffer{label: label, raw: raw}, nil
}

// Submit hands command buffers to the queue in order. Nil buffers are
// skipped; submitting with no buffers is a no-op. A buffer can be submitted
// only once.
func (c *Context) Submit(cmds ...*CommandBuffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	raws := make([]hal.CommandBuffer, 0, len(cmds))
	pending := make([]*CommandBuffer, 0, len(cmds))
	for _, cb := range cmds {
		if cb == nil {
			continue
		}
		if cb.state != cmdRecorded {
			return fmt.Errorf("device: command buffer %q submitted twice", cb.label)
		}
		if cb.raw != nil {
			raws = append(raws, cb.raw)
		}
		pending = append(pending, cb)
	}
	if len(pending) == 0 {
		return nil
	}

	value := c.submitted + 1
	if err := c.queue.Submit(raws, c.fence, value); err != nil {
		return fmt.Errorf("device: submit: %w", err)
	}
	c.submitted = value
	for _, cb := range pending {
		cb.state = cmdSubmitted
	}
	c.inflight = append(c.inflight, pending...)

	gpumath.Logger().Debug("device: submitted",
		"label", c.label, "buffers", len(raws), "fence", value)
	return nil
}

// Poll blocks until every submitted CommandBuffer has completed, then
// releases them. It returns ErrTimeout if the GPU does not finish within
// the poll timeout.
func (c *Context) Poll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	return c.pollLocked()
}

func (c *Context) pollLocked() error {
	if c.completed < c.submitted {
		ok, err := c.device.Wait(c.fence, c.submitted, c.pollTimeout)
		if err != nil {
			return fmt.Errorf("device: wait for fence %d: %w", c.submitted, err)
		}
		if !ok {
			return fmt.Errorf("%w after %v", ErrTimeout, c.pollTimeout)
		}
		c.completed = c.submitted
	}
	for _, cb := range c.inflight {
		cb.finish(c.device)
	}
	c.inflight = c.inflight[:0]
	return nil
}

// SubmitAndWait submits cmds and polls until all submitted work completes.
func (c *Context) SubmitAndWait(cmds ...*CommandBuffer) error {
	if err := c.Submit(cmds...); err != nil {
		return err
	}
	return c.Poll()
}

// Discard releases command buffers that will never be submitted, for
// example the buffers already produced by a fan-out that failed halfway.
// Submitted buffers are left to Poll.
func (c *Context) Discard(cmds ...*CommandBuffer) {
	for _, cb := range cmds {
		if cb == nil || cb.state != cmdRecorded {
			continue
		}
		cb.finish(c.device)
	}
}

// Pending returns the number of submitted buffers not yet released by Poll.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// WriteBuffer schedules a host-to-device copy. The copy is ordered before
// any work submitted afterwards.
func (c *Context) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	if c.isDestroyed() {
		return ErrDestroyed
	}
	c.queue.WriteBuffer(buf, offset, data)
	return nil
}

// ReadBuffer copies device memory into data. buf must be host-mappable and
// all work writing to it must have completed.
func (c *Context) ReadBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	if c.isDestroyed() {
		return ErrDestroyed
	}
	if err := c.queue.ReadBuffer(buf, offset, data); err != nil {
		return fmt.Errorf("device: read buffer: %w", err)
	}
	return nil
}

func (c *Context) isDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
