// Package kernels embeds the WGSL compute kernels shipped with gpumath.
package kernels

import _ "embed"

// Double writes input[i] * 2 into output[i] for i32 arrays.
//
// Bindings: 0 input (read-only storage), 1 output (storage).
//
//go:embed wgsl/double.wgsl
var Double string

// Distance scores candidate vectors by squared distance to a goal vector.
//
// Bindings: 0 solutions (read-only storage), 1 results (storage),
// 2 window {offset, count, vector_length, pad} (uniform),
// 3 goal (read-only storage).
//
//go:embed wgsl/distance.wgsl
var Distance string
