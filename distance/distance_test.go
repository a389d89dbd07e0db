package distance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/vector"
)

func vec(t *testing.T, vs ...float32) vector.Vector {
	t.Helper()
	v, err := vector.FromSlice(vs)
	require.NoError(t, err)
	return v
}

func TestEuclideanKnownValue(t *testing.T) {
	a := vec(t, 1, 0, 0, 0)
	b := vec(t, 0, 1, 0, 0)
	d, err := distance.Euclidean(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.41421356, d, 1e-5)
}

func TestSquaredEuclideanZeroForIdentical(t *testing.T) {
	a := vec(t, 3, 4, 5)
	d, err := distance.SquaredEuclidean(a, a)
	require.NoError(t, err)
	assert.Equal(t, float32(0), d)
}

func TestManhattan(t *testing.T) {
	a := vec(t, 0, 0)
	b := vec(t, 3, 4)
	d, err := distance.Manhattan(a, b)
	require.NoError(t, err)
	assert.Equal(t, float32(7), d)
}

func TestCosineIdenticalIsZero(t *testing.T) {
	a := vec(t, 1, 2, 3)
	d, err := distance.Cosine(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)
}

func TestCosineZeroVectorIsMax(t *testing.T) {
	zero := vec(t, 0, 0, 0)
	other := vec(t, 1, 2, 3)
	d, err := distance.Cosine(zero, other)
	require.NoError(t, err)
	assert.Equal(t, float32(2.0), d)

	d2, err := distance.Cosine(zero, zero)
	require.NoError(t, err)
	assert.Equal(t, float32(2.0), d2)
}

func TestDimensionMismatch(t *testing.T) {
	a := vec(t, 1, 2)
	b := vec(t, 1, 2, 3)

	for _, fn := range []distance.Func{distance.Euclidean, distance.SquaredEuclidean, distance.Manhattan, distance.Cosine} {
		_, err := fn(a, b)
		var dm *distance.ErrDimensionMismatch
		assert.ErrorAs(t, err, &dm)
	}
}

func TestProvider(t *testing.T) {
	for _, m := range []distance.Metric{distance.MetricEuclidean, distance.MetricSquaredEuclidean, distance.MetricManhattan, distance.MetricCosine} {
		fn, err := distance.Provider(m)
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}
	_, err := distance.Provider(distance.Metric(99))
	assert.Error(t, err)
}
