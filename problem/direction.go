package problem

import (
	"cmp"
	"fmt"
	"math"
	"strings"
)

// OptimizationDirection tells whether lower or higher fitness is better.
type OptimizationDirection int

const (
	// Minimize prefers smaller fitness values.
	Minimize OptimizationDirection = iota
	// Maximize prefers larger fitness values.
	Maximize
)

// ParseDirection accepts "min", "minimize", "max" and "maximize",
// ignoring case.
func ParseDirection(s string) (OptimizationDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimize":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	default:
		return Minimize, fmt.Errorf("problem: unknown optimization direction %q", s)
	}
}

// IsMinimize reports whether d is Minimize.
func (d OptimizationDirection) IsMinimize() bool { return d == Minimize }

// IsMaximize reports whether d is Maximize.
func (d OptimizationDirection) IsMaximize() bool { return d == Maximize }

// Compare orders fitness values from best to worst: it returns a negative
// number when a is better than b, zero when they are equal and a positive
// number otherwise. NaN ranks worst in both directions.
func (d OptimizationDirection) Compare(a, b float32) int {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	if d == Maximize {
		return cmp.Compare(b, a)
	}
	return cmp.Compare(a, b)
}

// Better reports whether a is strictly better than b.
func (d OptimizationDirection) Better(a, b float32) bool {
	return d.Compare(a, b) < 0
}

// Best returns the index of the best value, or -1 for an empty slice.
// Ties keep the first index.
func (d OptimizationDirection) Best(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if d.Better(values[i], values[best]) {
			best = i
		}
	}
	return best
}

// String returns "minimize" or "maximize".
func (d OptimizationDirection) String() string {
	if d == Maximize {
		return "maximize"
	}
	return "minimize"
}
