package problem

import "fmt"

// SquaredDistance is a Solver scoring each candidate by its squared
// euclidean distance to goal. It is the host twin of the distance kernel
// in internal/kernels.
func SquaredDistance(solutions []float32, goal []float32, p Params) ([]float32, error) {
	if len(goal) != p.VectorLength {
		return nil, fmt.Errorf("problem: goal has %d elements, vector length is %d", len(goal), p.VectorLength)
	}
	if len(solutions) != p.Count*p.VectorLength {
		return nil, fmt.Errorf("problem: got %d solution elements for %d candidates", len(solutions), p.Count)
	}
	out := make([]float32, p.Count)
	for i := range out {
		var sum float32
		for j, g := range goal {
			d := solutions[i*p.VectorLength+j] - g
			sum += d * d
		}
		out[i] = sum
	}
	return out, nil
}
