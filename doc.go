// Package gpumath provides building blocks for composing GPU compute work
// over slices of a larger problem.
//
// # Overview
//
// gpumath is a Pure Go library built on gogpu/wgpu. It splits into a thin
// GPU execution layer and an iteration composition engine that schedules
// heterogeneous (CPU or GPU) steps over ranged slices of a population.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gpumath/buffers"
//		"github.com/gogpu/gpumath/device"
//	)
//
//	ctx := device.MustNew()
//	defer ctx.Destroy()
//
//	storage, _ := buffers.NewStorage[float32](ctx, 1024)
//	_ = buffers.Write(ctx, storage, []float32{1, 2, 3}, 0)
//
//	reader, _ := buffers.NewReadback[float32](ctx, 3)
//	values, _ := buffers.Read[float32](reader, storage, 0, 3)
//
// # Architecture
//
// The library is organized into:
//   - gpumath: Size, logging configuration
//   - device: device + queue context, submission and fence tracking
//   - buffers: storage, readback and value buffers with checked offsets
//   - shader: compute kernels with bound or per-call resources
//   - iteration: the Iteration interface and its composites
//     (Compiled, Sliced, Combined, NotImplemented)
//   - problem: problem adapters that score candidate solutions on the
//     GPU (ShaderProblem) or on the host (CPUProblem)
//
// # Execution Modes
//
// Every iteration supports four modes: bound/synchronous (Bind + Evaluate),
// bound/asynchronous (Bind + EvaluateAsync), parameterized/synchronous
// (EvaluateWithParams) and parameterized/asynchronous
// (EvaluateWithParamsAsync). Asynchronous forms return recorded command
// buffers that the caller submits through device.Context.
package gpumath

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
