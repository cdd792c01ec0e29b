package problem

import (
	"fmt"

	"github.com/gogpu/gpumath/iteration"
)

// Runner calls fn(i) for every i in [0, n), possibly concurrently, and
// returns once all calls have finished.
type Runner interface {
	Run(n int, fn func(i int) error) error
}

// Chunked returns a Solver that scores the window in chunks of at most size
// candidates, running the chunks on r. Each call of solver sees the params
// of its own chunk. solver must be safe for concurrent use.
func Chunked[T, O any](solver Solver[T, O], r Runner, size int) Solver[T, O] {
	size = max(size, 1)
	return func(solutions []T, options O, p Params) ([]float32, error) {
		if r == nil || p.Count <= size {
			return solver(solutions, options, p)
		}
		out := make([]float32, p.Count)
		chunks := (p.Count + size - 1) / size
		err := r.Run(chunks, func(i int) error {
			lo := i * size
			hi := min(lo+size, p.Count)
			sub := p.WithRange(iteration.NewRange(p.Offset+lo, p.Offset+hi))
			res, err := solver(solutions[lo*p.VectorLength:hi*p.VectorLength], options, sub)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if len(res) != hi-lo {
				return fmt.Errorf("chunk %d: solver returned %d results for %d candidates", i, len(res), hi-lo)
			}
			copy(out[lo:hi], res)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}
