package problem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionCompare(t *testing.T) {
	assert.Negative(t, Minimize.Compare(1, 2))
	assert.Positive(t, Maximize.Compare(1, 2))
	assert.Zero(t, Minimize.Compare(3, 3))
	assert.Zero(t, Maximize.Compare(3, 3))

	nan := float32(math.NaN())
	for _, d := range []OptimizationDirection{Minimize, Maximize} {
		assert.Positive(t, d.Compare(nan, 1), "%v: NaN ranks worst", d)
		assert.Negative(t, d.Compare(1, nan), "%v: NaN ranks worst", d)
		assert.Zero(t, d.Compare(nan, nan))
	}
}

func TestDirectionPredicates(t *testing.T) {
	assert.True(t, Minimize.IsMinimize())
	assert.False(t, Minimize.IsMaximize())
	assert.True(t, Maximize.IsMaximize())
	assert.True(t, Minimize.Better(1, 2))
	assert.False(t, Minimize.Better(2, 2))
	assert.True(t, Maximize.Better(2, 1))
}

func TestDirectionBest(t *testing.T) {
	values := []float32{3, 1, 4, 1, 5}
	assert.Equal(t, 1, Minimize.Best(values), "ties keep the first index")
	assert.Equal(t, 4, Maximize.Best(values))
	assert.Equal(t, -1, Minimize.Best(nil))
	assert.Equal(t, 1, Minimize.Best([]float32{float32(math.NaN()), 2}))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]OptimizationDirection{
		"min": Minimize, "Minimize": Minimize, " max ": Maximize, "MAXIMIZE": Maximize,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)

	assert.Equal(t, "minimize", Minimize.String())
	assert.Equal(t, "maximize", Maximize.String())
}

func TestSquaredDistance(t *testing.T) {
	p := Params{Count: 2, VectorLength: 2}
	got, err := SquaredDistance([]float32{1, 1, 3, -1}, []float32{1, 1}, p)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 8}, got)

	_, err = SquaredDistance([]float32{1, 1}, []float32{1}, p)
	assert.Error(t, err)
	_, err = SquaredDistance([]float32{1, 1}, []float32{1, 1}, p)
	assert.Error(t, err)
}

func TestMulInt(t *testing.T) {
	n, ok := mulInt(6, 7)
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = mulInt(math.MaxInt, 2)
	assert.False(t, ok)
}
