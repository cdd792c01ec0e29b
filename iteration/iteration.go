// Package iteration composes bound and parameterized computation steps.
//
// Every step implements Iteration. Leaves do the work (a shader dispatch, a
// host-side scoring function); composites arrange leaves:
//
//   - Compiled builds its concrete iteration from the first params it sees.
//   - Sliced splits the params' Range across its children by fixed counts
//     and proportional weights.
//   - Combined hands identical params to every child and waits once for all
//     of their device work.
//   - NotImplemented fails every call; it marks stages not configured yet.
//
// Each Iteration supports four execution modes: Bind then Evaluate, Bind
// then EvaluateAsync, EvaluateWithParams and EvaluateWithParamsAsync. Async
// forms return recorded but unsubmitted command buffers; the caller submits
// them (device.Context.SubmitAndWait) or discards them. When an async form
// fails partway it returns the buffers recorded so far together with the
// error, so they can be discarded.
//
// An iteration tree is driven from a single goroutine.
package iteration

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpumath/device"
)

// Errors returned by iterations.
var (
	// ErrNotBound is returned by Evaluate and EvaluateAsync before any
	// params were supplied.
	ErrNotBound = errors.New("iteration: not bound")

	// ErrNotCompiled is returned by Compiled.Evaluate before the first
	// Bind or EvaluateWithParams. It matches ErrNotBound.
	ErrNotCompiled = fmt.Errorf("%w: not compiled", ErrNotBound)

	// ErrInfeasible is returned when child sizes cannot be reconciled with
	// the range being distributed.
	ErrInfeasible = errors.New("iteration: distribution infeasible")

	// ErrInvalidSize is returned for negative counts and non-positive or
	// non-finite weights.
	ErrInvalidSize = errors.New("iteration: invalid size")

	// ErrInvalidRange is returned for ranges with a negative start or count.
	ErrInvalidRange = errors.New("iteration: invalid range")

	// ErrNotImplemented is returned by every operation of NotImplemented.
	ErrNotImplemented = errors.New("iteration: not implemented")
)

// Iteration is one composable unit of computation over params of type P.
type Iteration[P any] interface {
	// Bind stores params for later Evaluate calls.
	Bind(params P) error
	// Evaluate runs with the last bound params and waits for completion.
	Evaluate() error
	// EvaluateAsync records the work of Evaluate without submitting it.
	EvaluateAsync() ([]*device.CommandBuffer, error)
	// EvaluateWithParams runs once with params, ignoring bound state.
	EvaluateWithParams(params P) error
	// EvaluateWithParamsAsync records the work of EvaluateWithParams
	// without submitting it.
	EvaluateWithParamsAsync(params P) ([]*device.CommandBuffer, error)
}

// Ranged is implemented by params that carry a Range. WithRange returns a
// copy with the range replaced; the receiver is not modified.
type Ranged[P any] interface {
	Range() Range
	WithRange(r Range) P
}
