package iteration

import (
	"fmt"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/device"
)

// Slice is one child of a Sliced iteration together with its declared size.
type Slice[P any] struct {
	Size      Size
	Iteration Iteration[P]
}

// Sliced distributes the Range of its params across children.
//
// Every call that carries params partitions params.Range() into contiguous
// sub-ranges, one per child in list order, sized by Distribute. Each child
// receives a copy of the params with its sub-range. Evaluate forwards to
// the children as bound; the sub-ranges are the ones fixed at the last Bind.
//
//	it := iteration.NewSliced[problem.Params]().
//		Add(iteration.Count(1), elite).
//		Add(iteration.Proportional(1), crossover).
//		Add(iteration.Proportional(1), mutation)
type Sliced[P Ranged[P]] struct {
	slices []Slice[P]
	bound  bool

	cached      []int
	cachedTotal int
}

// NewSliced returns an empty Sliced iteration.
func NewSliced[P Ranged[P]]() *Sliced[P] {
	return &Sliced[P]{}
}

// Add appends a child with the given size.
func (s *Sliced[P]) Add(size Size, it Iteration[P]) *Sliced[P] {
	s.slices = append(s.slices, Slice[P]{Size: size, Iteration: it})
	s.invalidate()
	return s
}

// Remove deletes the child at index i. It panics if i is out of range.
func (s *Sliced[P]) Remove(i int) *Sliced[P] {
	s.slices = append(s.slices[:i], s.slices[i+1:]...)
	s.invalidate()
	return s
}

// Clear removes all children.
func (s *Sliced[P]) Clear() *Sliced[P] {
	s.slices = nil
	s.invalidate()
	return s
}

// Set replaces all children.
func (s *Sliced[P]) Set(slices []Slice[P]) *Sliced[P] {
	s.slices = append([]Slice[P](nil), slices...)
	s.invalidate()
	return s
}

// Len returns the number of children.
func (s *Sliced[P]) Len() int { return len(s.slices) }

// Slice returns the child at index i.
func (s *Sliced[P]) Slice(i int) Slice[P] { return s.slices[i] }

// Size returns the declared size of child i.
func (s *Sliced[P]) Size(i int) Size { return s.slices[i].Size }

func (s *Sliced[P]) invalidate() {
	s.cached = nil
}

// Distribute returns the element count of each child for total. The result
// is cached until the children change; callers must not modify it.
func (s *Sliced[P]) Distribute(total int) ([]int, error) {
	if s.cached != nil && s.cachedTotal == total {
		return s.cached, nil
	}
	sizes := make([]Size, len(s.slices))
	for i, sl := range s.slices {
		sizes[i] = sl.Size
	}
	counts, err := distribute(sizes, total)
	if err != nil {
		return nil, err
	}
	s.cached, s.cachedTotal = counts, total
	gpumath.Logger().Debug("iteration: distributed", "total", total, "counts", counts)
	return counts, nil
}

// split returns one params copy per child, each carrying its sub-range.
func (s *Sliced[P]) split(params P) ([]P, error) {
	r := params.Range()
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, r)
	}
	counts, err := s.Distribute(r.Len())
	if err != nil {
		return nil, err
	}
	parts, err := r.Split(counts)
	if err != nil {
		return nil, err
	}
	out := make([]P, len(parts))
	for i, part := range parts {
		out[i] = params.WithRange(part)
	}
	return out, nil
}

// Bind binds each child to its share of params' range.
func (s *Sliced[P]) Bind(params P) error {
	parts, err := s.split(params)
	if err != nil {
		return err
	}
	// A failure part way leaves the children bound to different windows.
	s.bound = false
	for i, sl := range s.slices {
		if err := sl.Iteration.Bind(parts[i]); err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
	}
	s.bound = true
	return nil
}

// Evaluate evaluates each child in list order.
func (s *Sliced[P]) Evaluate() error {
	if !s.bound {
		return ErrNotBound
	}
	for i, sl := range s.slices {
		if err := sl.Iteration.Evaluate(); err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
	}
	return nil
}

// EvaluateAsync concatenates the children's command buffers in list order.
func (s *Sliced[P]) EvaluateAsync() ([]*device.CommandBuffer, error) {
	if !s.bound {
		return nil, ErrNotBound
	}
	var out []*device.CommandBuffer
	for i, sl := range s.slices {
		cbs, err := sl.Iteration.EvaluateAsync()
		out = append(out, cbs...)
		if err != nil {
			return out, fmt.Errorf("slice %d: %w", i, err)
		}
	}
	return out, nil
}

// EvaluateWithParams evaluates each child once on its share of params.
func (s *Sliced[P]) EvaluateWithParams(params P) error {
	parts, err := s.split(params)
	if err != nil {
		return err
	}
	for i, sl := range s.slices {
		if err := sl.Iteration.EvaluateWithParams(parts[i]); err != nil {
			return fmt.Errorf("slice %d: %w", i, err)
		}
	}
	return nil
}

// EvaluateWithParamsAsync records each child once on its share of params.
func (s *Sliced[P]) EvaluateWithParamsAsync(params P) ([]*device.CommandBuffer, error) {
	parts, err := s.split(params)
	if err != nil {
		return nil, err
	}
	var out []*device.CommandBuffer
	for i, sl := range s.slices {
		cbs, err := sl.Iteration.EvaluateWithParamsAsync(parts[i])
		out = append(out, cbs...)
		if err != nil {
			return out, fmt.Errorf("slice %d: %w", i, err)
		}
	}
	return out, nil
}
