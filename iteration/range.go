package iteration

import "fmt"

// Range is the half-open interval [Start, Start+Count) of a 1-D index space.
type Range struct {
	Start int
	Count int
}

// NewRange returns the range [start, end).
func NewRange(start, end int) Range {
	return Range{Start: start, Count: end - start}
}

// End returns Start + Count.
func (r Range) End() int { return r.Start + r.Count }

// Len returns Count.
func (r Range) Len() int { return r.Count }

// IsEmpty reports whether the range holds no indices.
func (r Range) IsEmpty() bool { return r.Count == 0 }

// Valid reports whether Start and Count are non-negative.
func (r Range) Valid() bool { return r.Start >= 0 && r.Count >= 0 }

// Contains reports whether inner lies within r.
func (r Range) Contains(inner Range) bool {
	return inner.Start >= r.Start && inner.End() <= r.End()
}

// Split partitions r into consecutive sub-ranges of the given lengths.
// The lengths must be non-negative and sum to r.Count.
func (r Range) Split(counts []int) ([]Range, error) {
	out := make([]Range, len(counts))
	next := r.Start
	for i, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("%w: count %d at %d", ErrInvalidSize, n, i)
		}
		out[i] = Range{Start: next, Count: n}
		next += n
	}
	if next != r.End() {
		return nil, fmt.Errorf("%w: parts cover %d of %d", ErrInfeasible, next-r.Start, r.Count)
	}
	return out, nil
}

// Range returns r, so Range can be used directly as params.
func (r Range) Range() Range { return r }

// WithRange returns nr.
func (r Range) WithRange(nr Range) Range { return nr }

// String formats the range as "start..end".
func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.Start, r.End())
}
