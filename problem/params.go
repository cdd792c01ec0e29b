// Package problem evaluates a population of candidate solutions into one
// float32 fitness value per candidate.
//
// Candidates are stored back to back in a solutions buffer, VectorLength
// elements each; fitness values go to a results buffer at the candidate's
// index. Params selects the window [Offset, Offset+Count) of candidates to
// evaluate, so problems compose under iteration.Sliced.
//
// ShaderProblem evaluates on the device. CPUProblem reads candidates back to
// the host and scores them with a Go function; it moves the whole window
// across the bus on every evaluation and is meant for testing and for
// scoring functions that cannot run on the GPU.
package problem

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpumath/buffers"
	"github.com/gogpu/gpumath/device"
	"github.com/gogpu/gpumath/iteration"
)

// ErrInvalidParams is returned for params that do not describe a window of
// the population.
var ErrInvalidParams = errors.New("problem: invalid params")

// Params is the contract between a problem and the driver owning the
// population buffers.
type Params struct {
	Context   *device.Context
	Solutions *buffers.Storage
	Results   *buffers.Storage

	// Offset and Count select the candidates to evaluate.
	Offset int
	Count  int
	// VectorLength is the number of solution elements per candidate.
	VectorLength int
}

// Range returns [Offset, Offset+Count).
func (p Params) Range() iteration.Range {
	return iteration.Range{Start: p.Offset, Count: p.Count}
}

// WithRange returns a copy of p evaluating r.
func (p Params) WithRange(r iteration.Range) Params {
	p.Offset, p.Count = r.Start, r.Count
	return p
}

// Population returns how many fitness values the results buffer holds.
func (p Params) Population() int {
	if p.Results == nil {
		return 0
	}
	return buffers.Len[float32](p.Results)
}

// Validate checks that p names a device and buffers and that the window
// lies within the population.
func (p Params) Validate() error {
	switch {
	case p.Context == nil:
		return fmt.Errorf("%w: no device context", ErrInvalidParams)
	case p.Solutions == nil || p.Results == nil:
		return fmt.Errorf("%w: missing solutions or results buffer", ErrInvalidParams)
	case p.VectorLength <= 0:
		return fmt.Errorf("%w: vector length %d", ErrInvalidParams, p.VectorLength)
	case p.Offset < 0 || p.Count < 0:
		return fmt.Errorf("%w: window %d+%d", ErrInvalidParams, p.Offset, p.Count)
	}
	if end := p.Offset + p.Count; end > p.Population() {
		return fmt.Errorf("%w: window ends at %d, population is %d", ErrInvalidParams, end, p.Population())
	}
	return nil
}
