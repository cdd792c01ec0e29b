package iteration

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/gpumath/device"
)

// recorder is a leaf that logs every call it receives.
type recorder struct {
	name string
	log  *[]string

	bound      []Range
	withParams []Range
	evaluated  int

	// cbs is returned by every async call.
	cbs []*device.CommandBuffer
	err error
}

func newRecorder(name string, log *[]string, cbs ...*device.CommandBuffer) *recorder {
	return &recorder{name: name, log: log, cbs: cbs}
}

func (r *recorder) note(op string, args ...any) {
	if r.log != nil {
		*r.log = append(*r.log, r.name+"."+op+fmt.Sprint(args...))
	}
}

func (r *recorder) Bind(p Range) error {
	r.note("bind", p)
	r.bound = append(r.bound, p)
	return r.err
}

func (r *recorder) Evaluate() error {
	r.note("evaluate")
	r.evaluated++
	return r.err
}

func (r *recorder) EvaluateAsync() ([]*device.CommandBuffer, error) {
	r.note("async")
	return r.cbs, r.err
}

func (r *recorder) EvaluateWithParams(p Range) error {
	r.note("params", p)
	r.withParams = append(r.withParams, p)
	return r.err
}

func (r *recorder) EvaluateWithParamsAsync(p Range) ([]*device.CommandBuffer, error) {
	r.note("paramsAsync", p)
	r.withParams = append(r.withParams, p)
	return r.cbs, r.err
}

// fakeSubmitter records submissions instead of talking to a device.
type fakeSubmitter struct {
	submits   [][]*device.CommandBuffer
	discarded []*device.CommandBuffer
	err       error
}

func (f *fakeSubmitter) SubmitAndWait(cmds ...*device.CommandBuffer) error {
	f.submits = append(f.submits, cmds)
	return f.err
}

func (f *fakeSubmitter) Discard(cmds ...*device.CommandBuffer) {
	f.discarded = append(f.discarded, cmds...)
}

func cmds(n int) []*device.CommandBuffer {
	out := make([]*device.CommandBuffer, n)
	for i := range out {
		out[i] = new(device.CommandBuffer)
	}
	return out
}

func TestDistribute(t *testing.T) {
	p := Proportional
	tests := []struct {
		name  string
		sizes []Size
		total int
		want  []int
	}{
		{"even weights", []Size{Count(1), Count(9), p(1), p(1)}, 20, []int{1, 9, 5, 5}},
		{"odd remainder goes last", []Size{Count(1), Count(9), p(1), p(1)}, 17, []int{1, 9, 3, 4}},
		{"uneven weights", []Size{Count(1), Count(9), p(1), p(2)}, 17, []int{1, 9, 2, 5}},
		{"uneven weights 20", []Size{Count(1), Count(9), p(1), p(2)}, 20, []int{1, 9, 3, 7}},
		{"interleaved", []Size{p(1), Count(1), p(1)}, 5, []int{2, 1, 2}},
		{"fixed only exact", []Size{Count(3), Count(4)}, 7, []int{3, 4}},
		{"zero total", []Size{Count(0), p(1)}, 0, []int{0, 0}},
		{"empty", nil, 0, []int{}},
		{"small trailing weight takes leftover", []Size{p(10), p(10), p(1)}, 10, []int{4, 4, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := distribute(tt.sizes, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistributeErrors(t *testing.T) {
	tests := []struct {
		name  string
		sizes []Size
		total int
		err   error
	}{
		{"fixed exceeds total", []Size{Count(1), Count(9), Proportional(1)}, 5, ErrInfeasible},
		{"fixed short without weights", []Size{Count(1), Count(9)}, 20, ErrInfeasible},
		{"empty with total", nil, 3, ErrInfeasible},
		{"negative count", []Size{Count(-1), Proportional(1)}, 3, ErrInvalidSize},
		{"zero weight", []Size{Proportional(0)}, 3, ErrInvalidSize},
		{"negative weight", []Size{Proportional(-2)}, 3, ErrInvalidSize},
		{"NaN weight", []Size{Proportional(math.NaN())}, 3, ErrInvalidSize},
		{"infinite weight", []Size{Proportional(math.Inf(1))}, 3, ErrInvalidSize},
		{"negative total", []Size{Proportional(1)}, -1, ErrInvalidSize},
		{"fixed overflow", []Size{Count(math.MaxInt), Count(1)}, 10, ErrInfeasible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := distribute(tt.sizes, tt.total)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDistributeExact(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		n := 1 + rng.IntN(6)
		sizes := make([]Size, n)
		fixed := 0
		hasWeight := false
		for j := range sizes {
			if rng.IntN(2) == 0 {
				c := rng.IntN(20)
				sizes[j] = Count(c)
				fixed += c
			} else {
				sizes[j] = Proportional(0.1 + rng.Float64()*5)
				hasWeight = true
			}
		}
		total := fixed
		if hasWeight {
			total += rng.IntN(1000)
		}

		got, err := distribute(sizes, total)
		require.NoError(t, err, "sizes=%v total=%d", sizes, total)
		sum := 0
		for j, c := range got {
			assert.GreaterOrEqual(t, c, 0)
			if !sizes[j].IsProportional() {
				assert.Equal(t, sizes[j].Count(), c)
			}
			sum += c
		}
		assert.Equal(t, total, sum, "sizes=%v", sizes)
	}
}

func TestSizeAccessors(t *testing.T) {
	c := Count(4)
	assert.False(t, c.IsProportional())
	assert.Equal(t, 4, c.Count())
	assert.Equal(t, "4", c.String())

	w := Proportional(2.5)
	assert.True(t, w.IsProportional())
	assert.Equal(t, 2.5, w.Weight())
	assert.Zero(t, w.Count())
	assert.Equal(t, "x2.5", w.String())
}

func TestRange(t *testing.T) {
	r := NewRange(10, 15)
	assert.Equal(t, Range{Start: 10, Count: 5}, r)
	assert.Equal(t, 15, r.End())
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, "10..15", r.String())
	assert.True(t, r.Valid())
	assert.False(t, Range{Start: -1}.Valid())
	assert.True(t, Range{}.IsEmpty())
	assert.True(t, r.Contains(NewRange(11, 15)))
	assert.False(t, r.Contains(NewRange(9, 12)))
	assert.Equal(t, NewRange(0, 3), r.WithRange(NewRange(0, 3)))
}

func TestRangeSplit(t *testing.T) {
	parts, err := NewRange(0, 20).Split([]int{1, 9, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, []Range{NewRange(0, 1), NewRange(1, 10), NewRange(10, 15), NewRange(15, 20)}, parts)

	_, err = NewRange(0, 20).Split([]int{1, 2})
	assert.ErrorIs(t, err, ErrInfeasible)

	_, err = NewRange(0, 2).Split([]int{3, -1})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

// slicedFixture builds the 1, 9, x1, xw composition.
func slicedFixture(lastWeight float64) (*Sliced[Range], []*recorder, *[]string) {
	log := new([]string)
	recs := []*recorder{
		newRecorder("a", log), newRecorder("b", log),
		newRecorder("c", log), newRecorder("d", log),
	}
	s := NewSliced[Range]().
		Add(Count(1), recs[0]).
		Add(Count(9), recs[1]).
		Add(Proportional(1), recs[2]).
		Add(Proportional(lastWeight), recs[3])
	return s, recs, log
}

func boundRanges(recs []*recorder) []Range {
	out := make([]Range, len(recs))
	for i, r := range recs {
		out[i] = r.bound[len(r.bound)-1]
	}
	return out
}

func TestSlicedBindPartitions(t *testing.T) {
	s, recs, _ := slicedFixture(1)
	require.NoError(t, s.Bind(NewRange(0, 20)))
	assert.Equal(t, []Range{NewRange(0, 1), NewRange(1, 10), NewRange(10, 15), NewRange(15, 20)}, boundRanges(recs))

	s, recs, _ = slicedFixture(2)
	require.NoError(t, s.Bind(NewRange(0, 20)))
	assert.Equal(t, []Range{NewRange(0, 1), NewRange(1, 10), NewRange(10, 13), NewRange(13, 20)}, boundRanges(recs))
}

func TestSlicedEvaluateWithParamsOffset(t *testing.T) {
	s, recs, _ := slicedFixture(2)
	require.NoError(t, s.EvaluateWithParams(NewRange(11, 31)))

	var got []Range
	for _, r := range recs {
		require.Len(t, r.withParams, 1)
		got = append(got, r.withParams[0])
	}
	assert.Equal(t, []Range{NewRange(11, 12), NewRange(12, 21), NewRange(21, 24), NewRange(24, 31)}, got)
	for _, r := range recs {
		assert.Empty(t, r.bound, "one-shot evaluation does not bind")
	}
}

func TestSlicedInfeasibleRunsNothing(t *testing.T) {
	s, recs, log := slicedFixture(1)
	assert.ErrorIs(t, s.Bind(NewRange(0, 5)), ErrInfeasible)
	assert.ErrorIs(t, s.EvaluateWithParams(NewRange(0, 5)), ErrInfeasible)
	cbs, err := s.EvaluateWithParamsAsync(NewRange(0, 5))
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Empty(t, cbs)
	assert.Empty(t, *log)
	assert.Empty(t, recs[0].bound)
}

func TestSlicedInvalidRange(t *testing.T) {
	s, _, _ := slicedFixture(1)
	assert.ErrorIs(t, s.Bind(Range{Start: -1, Count: 20}), ErrInvalidRange)
	assert.ErrorIs(t, s.Bind(Range{Start: 0, Count: -2}), ErrInvalidRange)
}

func TestSlicedEvaluateBeforeBind(t *testing.T) {
	s, _, log := slicedFixture(1)
	assert.ErrorIs(t, s.Evaluate(), ErrNotBound)
	_, err := s.EvaluateAsync()
	assert.ErrorIs(t, err, ErrNotBound)
	assert.Empty(t, *log)
}

func TestSlicedFailedRebindUnbinds(t *testing.T) {
	s, recs, _ := slicedFixture(1)
	require.NoError(t, s.Bind(NewRange(0, 20)))
	require.NoError(t, s.Evaluate())

	recs[2].err = errors.New("bind failed")
	err := s.Bind(NewRange(0, 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slice 2")

	recs[2].err = nil
	assert.ErrorIs(t, s.Evaluate(), ErrNotBound, "children hold mixed windows")
	_, err = s.EvaluateAsync()
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestSlicedEvaluateInOrder(t *testing.T) {
	s, _, log := slicedFixture(1)
	require.NoError(t, s.Bind(NewRange(0, 20)))
	*log = nil

	require.NoError(t, s.Evaluate())
	assert.Equal(t, []string{"a.evaluate", "b.evaluate", "c.evaluate", "d.evaluate"}, *log)
}

func TestSlicedAsyncConcatenatesInOrder(t *testing.T) {
	all := cmds(4)
	s := NewSliced[Range]().
		Add(Count(2), newRecorder("a", nil, all[0], all[1])).
		Add(Proportional(1), newRecorder("b", nil)).
		Add(Proportional(1), newRecorder("c", nil, all[2], all[3]))

	got, err := s.EvaluateWithParamsAsync(NewRange(0, 10))
	require.NoError(t, err)
	assert.Equal(t, all, got)

	require.NoError(t, s.Bind(NewRange(0, 10)))
	got, err = s.EvaluateAsync()
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestSlicedAsyncPartialFailure(t *testing.T) {
	all := cmds(2)
	boom := errors.New("boom")
	failing := newRecorder("b", nil)
	failing.err = boom
	last := newRecorder("c", nil, cmds(1)...)

	s := NewSliced[Range]().
		Add(Count(1), newRecorder("a", nil, all...)).
		Add(Proportional(1), failing).
		Add(Proportional(1), last)

	got, err := s.EvaluateWithParamsAsync(NewRange(0, 3))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "slice 1")
	assert.Equal(t, all, got, "buffers recorded before the failure are returned")
	assert.Empty(t, last.withParams, "later children are not run")
}

func TestSlicedDistributionCache(t *testing.T) {
	s, _, _ := slicedFixture(1)

	first, err := s.Distribute(20)
	require.NoError(t, err)
	again, err := s.Distribute(20)
	require.NoError(t, err)
	assert.Same(t, &first[0], &again[0], "same total reuses the cached distribution")

	other, err := s.Distribute(17)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 9, 3, 4}, other)

	s.Add(Proportional(1), newRecorder("e", nil))
	grown, err := s.Distribute(17)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 9, 2, 2, 3}, grown, "adding a child invalidates the cache")
}

func TestSlicedMutation(t *testing.T) {
	s, recs, _ := slicedFixture(1)
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, Count(9), s.Size(1))
	assert.Same(t, recs[2], s.Slice(2).Iteration)

	s.Remove(1)
	assert.Equal(t, 3, s.Len())
	counts, err := s.Distribute(20)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 9, 10}, counts)

	s.Set([]Slice[Range]{{Size: Proportional(1), Iteration: recs[0]}})
	counts, err = s.Distribute(20)
	require.NoError(t, err)
	assert.Equal(t, []int{20}, counts)

	s.Clear()
	assert.Zero(t, s.Len())
	_, err = s.Distribute(20)
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestSlicedNested(t *testing.T) {
	log := new([]string)
	inner := NewSliced[Range]().
		Add(Proportional(1), newRecorder("x", log)).
		Add(Proportional(1), newRecorder("y", log))
	outer := NewSliced[Range]().
		Add(Count(2), newRecorder("a", log)).
		Add(Proportional(1), inner)

	require.NoError(t, outer.Bind(NewRange(0, 10)))
	assert.Equal(t, []string{"a.bind0..2", "x.bind2..6", "y.bind6..10"}, *log)
}

func TestCompiledCompilesOnce(t *testing.T) {
	calls := 0
	var seen Range
	leaf := newRecorder("leaf", nil)
	c := NewCompiled[Range](CompilerFunc[Range](func(p Range) (Iteration[Range], error) {
		calls++
		seen = p
		return leaf, nil
	}))

	assert.False(t, c.IsCompiled())
	assert.Nil(t, c.Iteration())

	require.NoError(t, c.Bind(NewRange(0, 4)))
	require.NoError(t, c.Bind(NewRange(4, 8)))
	require.NoError(t, c.EvaluateWithParams(NewRange(1, 2)))
	_, err := c.EvaluateWithParamsAsync(NewRange(2, 3))
	require.NoError(t, err)
	require.NoError(t, c.Evaluate())

	assert.Equal(t, 1, calls)
	assert.Equal(t, NewRange(0, 4), seen, "compiled against the first params")
	assert.True(t, c.IsCompiled())
	assert.Same(t, leaf, c.Iteration())
	assert.Equal(t, []Range{NewRange(0, 4), NewRange(4, 8)}, leaf.bound)
	assert.Equal(t, 1, leaf.evaluated)
}

func TestCompiledCompilesOnFirstParams(t *testing.T) {
	calls := 0
	c := NewCompiled[Range](CompilerFunc[Range](func(Range) (Iteration[Range], error) {
		calls++
		return newRecorder("leaf", nil), nil
	}))
	_, err := c.EvaluateWithParamsAsync(NewRange(0, 1))
	require.NoError(t, err)
	assert.True(t, c.IsCompiled())
	require.NoError(t, c.Bind(NewRange(0, 1)))
	assert.Equal(t, 1, calls)
}

func TestCompiledEvaluateBeforeCompile(t *testing.T) {
	c := NewCompiled[Range](CompilerFunc[Range](func(Range) (Iteration[Range], error) {
		t.Fatal("Evaluate must not compile")
		return nil, nil
	}))
	err := c.Evaluate()
	assert.ErrorIs(t, err, ErrNotCompiled)
	assert.ErrorIs(t, err, ErrNotBound)

	_, err = c.EvaluateAsync()
	assert.ErrorIs(t, err, ErrNotCompiled)
}

func TestCompiledCompileError(t *testing.T) {
	boom := errors.New("bad kernel")
	calls := 0
	c := NewCompiled[Range](CompilerFunc[Range](func(Range) (Iteration[Range], error) {
		calls++
		return nil, boom
	}))

	assert.ErrorIs(t, c.Bind(NewRange(0, 1)), boom)
	assert.False(t, c.IsCompiled())
	assert.ErrorIs(t, c.Bind(NewRange(0, 1)), boom)
	assert.Equal(t, 2, calls, "a failed compile is retried on the next call")

	nilCompiler := NewCompiled[Range](CompilerFunc[Range](func(Range) (Iteration[Range], error) {
		return nil, nil
	}))
	assert.Error(t, nilCompiler.Bind(NewRange(0, 1)))
	assert.False(t, nilCompiler.IsCompiled())
}

func TestCombinedForwardsSameParams(t *testing.T) {
	log := new([]string)
	sub := &fakeSubmitter{}
	c := NewCombined[Range](sub, newRecorder("a", log), newRecorder("b", log))

	require.NoError(t, c.Bind(NewRange(3, 9)))
	assert.Equal(t, []string{"a.bind3..9", "b.bind3..9"}, *log)
}

func TestCombinedEvaluateWaitsOnceForAll(t *testing.T) {
	a, b := cmds(2), cmds(1)
	sub := &fakeSubmitter{}
	c := NewCombined[Range](sub,
		newRecorder("a", nil, a...),
		newRecorder("b", nil, b...),
		newRecorder("cpu", nil))

	assert.ErrorIs(t, c.Evaluate(), ErrNotBound)
	assert.Empty(t, sub.submits)

	require.NoError(t, c.Bind(NewRange(0, 4)))
	require.NoError(t, c.Evaluate())
	require.Len(t, sub.submits, 1)
	assert.Equal(t, append(append([]*device.CommandBuffer{}, a...), b...), sub.submits[0])

	require.NoError(t, c.EvaluateWithParams(NewRange(0, 4)))
	require.Len(t, sub.submits, 2)
	assert.Len(t, sub.submits[1], 3)
}

func TestCombinedAsyncDoesNotSubmit(t *testing.T) {
	sub := &fakeSubmitter{}
	c := NewCombined[Range](sub, newRecorder("a", nil, cmds(1)...), newRecorder("b", nil, cmds(2)...))

	got, err := c.EvaluateWithParamsAsync(NewRange(0, 1))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Empty(t, sub.submits)
}

func TestCombinedFailureDiscards(t *testing.T) {
	boom := errors.New("boom")
	first := cmds(2)
	failing := newRecorder("b", nil)
	failing.err = boom
	sub := &fakeSubmitter{}
	c := NewCombined[Range](sub, newRecorder("a", nil, first...), failing)

	err := c.EvaluateWithParams(NewRange(0, 1))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, sub.submits)
	assert.Equal(t, first, sub.discarded)
}

func TestCombinedFailedRebindUnbinds(t *testing.T) {
	sub := &fakeSubmitter{}
	a, b := newRecorder("a", nil, cmds(1)...), newRecorder("b", nil)
	c := NewCombined[Range](sub, a, b)
	require.NoError(t, c.Bind(NewRange(0, 4)))

	b.err = errors.New("bind failed")
	require.Error(t, c.Bind(NewRange(4, 8)))

	b.err = nil
	assert.ErrorIs(t, c.Evaluate(), ErrNotBound)
	assert.Empty(t, sub.submits)

	require.NoError(t, c.Bind(NewRange(4, 8)))
	assert.NoError(t, c.Evaluate())
}

func TestCombinedMutation(t *testing.T) {
	sub := &fakeSubmitter{}
	a, b := newRecorder("a", nil), newRecorder("b", nil)
	c := NewCombined[Range](sub).Add(a).Add(b)
	assert.Equal(t, 2, c.Len())
	c.Remove(0)
	assert.Equal(t, 1, c.Len())
	c.Set([]Iteration[Range]{a, b, a})
	assert.Equal(t, 3, c.Len())
	c.Clear()
	assert.Zero(t, c.Len())
}

func TestNotImplemented(t *testing.T) {
	n := NewNotImplemented[Range]("mutation")
	check := func(err error) {
		t.Helper()
		assert.ErrorIs(t, err, ErrNotImplemented)
		assert.Contains(t, err.Error(), "mutation")
	}

	check(n.Bind(NewRange(0, 1)))
	check(n.Evaluate())
	check(n.EvaluateWithParams(NewRange(0, 1)))
	cbs, err := n.EvaluateAsync()
	check(err)
	assert.Nil(t, cbs)
	cbs, err = n.EvaluateWithParamsAsync(NewRange(0, 1))
	check(err)
	assert.Nil(t, cbs)
}

func TestNotImplementedInsideSliced(t *testing.T) {
	log := new([]string)
	s := NewSliced[Range]().
		Add(Proportional(1), newRecorder("a", log)).
		Add(Proportional(1), NewNotImplemented[Range]("crossover"))

	err := s.EvaluateWithParams(NewRange(0, 4))
	assert.ErrorIs(t, err, ErrNotImplemented)
	assert.Contains(t, err.Error(), "crossover")
}

func TestFuncs(t *testing.T) {
	var got []Range
	f := &Funcs[Range]{
		EvaluateWithParamsFunc: func(p Range) error {
			got = append(got, p)
			return nil
		},
	}

	assert.ErrorIs(t, f.Evaluate(), ErrNotBound)
	_, err := f.EvaluateAsync()
	assert.ErrorIs(t, err, ErrNotBound)

	require.NoError(t, f.Bind(NewRange(0, 2)))
	require.NoError(t, f.Evaluate())
	cbs, err := f.EvaluateAsync()
	require.NoError(t, err)
	assert.Empty(t, cbs)
	require.NoError(t, f.EvaluateWithParams(NewRange(5, 6)))

	assert.Equal(t, []Range{NewRange(0, 2), NewRange(0, 2), NewRange(5, 6)}, got)
}

func TestFuncsOverrides(t *testing.T) {
	bound := 0
	want := cmds(1)
	f := &Funcs[Range]{
		BindFunc:     func(Range) error { bound++; return nil },
		EvaluateFunc: func(Range) error { return errors.New("custom") },
		EvaluateWithParamsAsyncFunc: func(Range) ([]*device.CommandBuffer, error) {
			return want, nil
		},
	}

	require.NoError(t, f.Bind(NewRange(0, 1)))
	assert.Equal(t, 1, bound)
	assert.EqualError(t, f.Evaluate(), "custom")
	got, err := f.EvaluateAsync()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.ErrorIs(t, f.EvaluateWithParams(NewRange(0, 1)), ErrNotImplemented)
}
