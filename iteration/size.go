package iteration

import (
	"fmt"
	"math"
)

// Size is the declared share of a Sliced child: either an absolute element
// count or a proportional weight of what remains after all counts.
type Size struct {
	proportional bool
	count        int
	weight       float64
}

// Count returns a fixed-size share of n elements.
func Count(n int) Size {
	return Size{count: n}
}

// Proportional returns a share weighted by w. Weights must be positive.
func Proportional(w float64) Size {
	return Size{proportional: true, weight: w}
}

// IsProportional reports whether s is a weight.
func (s Size) IsProportional() bool { return s.proportional }

// Count returns the fixed count, or 0 for a weight.
func (s Size) Count() int { return s.count }

// Weight returns the weight, or 0 for a fixed count.
func (s Size) Weight() float64 { return s.weight }

func (s Size) validate() error {
	if s.proportional {
		if !(s.weight > 0) || math.IsInf(s.weight, 0) {
			return fmt.Errorf("%w: weight %v", ErrInvalidSize, s.weight)
		}
		return nil
	}
	if s.count < 0 {
		return fmt.Errorf("%w: count %d", ErrInvalidSize, s.count)
	}
	return nil
}

// String formats s as "N" for counts and "xW" for weights.
func (s Size) String() string {
	if s.proportional {
		return fmt.Sprintf("x%g", s.weight)
	}
	return fmt.Sprintf("%d", s.count)
}

// distribute assigns absolute counts to sizes so that they sum to total.
//
// Counts keep their literal value. What remains is split between weights in
// proportion, rounding down; the last weight in list order takes the
// leftover, so rounding never drifts. Without any weight the counts must
// cover total exactly.
func distribute(sizes []Size, total int) ([]int, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: total %d", ErrInvalidSize, total)
	}

	fixed := 0
	weightSum := 0.0
	last := -1
	for i, s := range sizes {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		if s.proportional {
			weightSum += s.weight
			last = i
			continue
		}
		if fixed > math.MaxInt-s.count {
			return nil, fmt.Errorf("%w: fixed counts overflow", ErrInfeasible)
		}
		fixed += s.count
	}
	if fixed > total {
		return nil, fmt.Errorf("%w: fixed counts sum to %d, more than %d", ErrInfeasible, fixed, total)
	}
	remaining := total - fixed
	if last < 0 && remaining != 0 {
		return nil, fmt.Errorf("%w: fixed counts sum to %d, total is %d and no slice is proportional",
			ErrInfeasible, fixed, total)
	}

	counts := make([]int, len(sizes))
	assigned := 0
	for i, s := range sizes {
		switch {
		case !s.proportional:
			counts[i] = s.count
		case i == last:
			counts[i] = remaining - assigned
		default:
			n := int(math.Floor(float64(remaining) * s.weight / weightSum))
			n = min(n, remaining-assigned)
			counts[i] = n
			assigned += n
		}
	}
	return counts, nil
}
