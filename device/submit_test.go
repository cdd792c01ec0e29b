//go:build !nogpu

package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitEmptyIsNoop(t *testing.T) {
	c := newNoopContext(t)
	require.NoError(t, c.Submit())
	require.NoError(t, c.Submit(nil, nil))
	assert.Equal(t, 0, c.Pending())
	assert.NoError(t, c.Poll())
}

func TestSubmitTwiceRejected(t *testing.T) {
	c := newNoopContext(t)
	cb := &CommandBuffer{label: "twice", state: cmdSubmitted}
	err := c.Submit(cb)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}

func TestDiscardRunsReleaseInReverse(t *testing.T) {
	c := newNoopContext(t)
	var order []int
	cb := &CommandBuffer{label: "discarded"}
	cb.OnComplete(func() { order = append(order, 1) })
	cb.OnComplete(func() { order = append(order, 2) })

	c.Discard(cb, nil)

	assert.Equal(t, []int{2, 1}, order)
	assert.True(t, cb.Done())
	assert.True(t, cb.Submitted(), "a finished buffer counts as past submission")
}

func TestDiscardSkipsSubmitted(t *testing.T) {
	c := newNoopContext(t)
	released := false
	cb := &CommandBuffer{label: "inflight", state: cmdSubmitted}
	cb.OnComplete(func() { released = true })

	c.Discard(cb)

	assert.False(t, released)
	assert.False(t, cb.Done())
}

func TestEncodeRecordErrorDiscards(t *testing.T) {
	c := newNoopContext(t)
	boom := errors.New("record failed")
	cb, err := c.Encode("failing", func(hal.CommandEncoder) error { return boom })
	assert.Nil(t, cb)
	assert.ErrorIs(t, err, boom)
}

// failingEncoderDevice hands out encoders that fail to begin or end.
type failingEncoderDevice struct {
	hal.Device
	beginErr, endErr error
	discards         int32
}

func (d *failingEncoderDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &failingEncoder{CommandEncoder: enc, dev: d}, nil
}

type failingEncoder struct {
	hal.CommandEncoder
	dev *failingEncoderDevice
}

func (e *failingEncoder) BeginEncoding(label string) error {
	if e.dev.beginErr != nil {
		return e.dev.beginErr
	}
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *failingEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.dev.endErr != nil {
		return nil, e.dev.endErr
	}
	return e.CommandEncoder.EndEncoding()
}

func (e *failingEncoder) DiscardEncoding() {
	atomic.AddInt32(&e.dev.discards, 1)
	e.CommandEncoder.DiscardEncoding()
}

func TestEncodeFailureDiscards(t *testing.T) {
	boom := errors.New("encoder failed")
	tests := []struct {
		name  string
		setup func(*failingEncoderDevice)
	}{
		{"begin", func(d *failingEncoderDevice) { d.beginErr = boom }},
		{"end", func(d *failingEncoderDevice) { d.endErr = boom }},
		{"record", func(*failingEncoderDevice) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := newNoopContext(t)
			spy := &failingEncoderDevice{Device: owner.Device()}
			tt.setup(spy)
			c, err := FromHAL(spy, owner.Queue())
			require.NoError(t, err)
			defer c.Destroy()

			cb, err := c.Encode(tt.name, func(hal.CommandEncoder) error {
				if tt.name == "record" {
					return boom
				}
				return nil
			})
			assert.Nil(t, cb)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, int32(1), atomic.LoadInt32(&spy.discards))
		})
	}
}

func TestEncodeSuccessKeepsEncoding(t *testing.T) {
	owner := newNoopContext(t)
	spy := &failingEncoderDevice{Device: owner.Device()}
	c, err := FromHAL(spy, owner.Queue())
	require.NoError(t, err)
	defer c.Destroy()

	cb, err := c.Encode("ok", func(hal.CommandEncoder) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&spy.discards))
	c.Discard(cb)
}

func TestSubmitAndWaitOnGPU(t *testing.T) {
	c, err := New(context.Background())
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	defer c.Destroy()

	cb, err := c.Encode("empty", func(hal.CommandEncoder) error { return nil })
	require.NoError(t, err)
	released := false
	cb.OnComplete(func() { released = true })

	require.NoError(t, c.SubmitAndWait(cb))
	assert.True(t, released)
	assert.True(t, cb.Done())
	assert.Equal(t, 0, c.Pending())
}
