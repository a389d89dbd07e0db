package kdtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/index"
	"github.com/lhlRahman/vector-database/index/kdtree"
	"github.com/lhlRahman/vector-database/vector"
)

func vec(t *testing.T, vs ...float32) vector.Vector {
	t.Helper()
	v, err := vector.FromSlice(vs)
	require.NoError(t, err)
	return v
}

func TestRejectsCosineMetric(t *testing.T) {
	_, err := kdtree.New(kdtree.Options{Dimension: 2, Metric: distance.MetricCosine})
	assert.ErrorIs(t, err, kdtree.ErrUnsupportedMetric)
}

func TestSelfSearchIsZeroDistance(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(3))
	require.NoError(t, err)

	v := vec(t, 1, 2, 3)
	require.NoError(t, tree.Insert(1, v))

	results, err := tree.KNNSearch(v, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, float32(0), results[0].Distance)
}

func TestKNNSearchOrdersByAscendingDistance(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(2))
	require.NoError(t, err)

	points := map[uint64]vector.Vector{
		1: vec(t, 0, 0),
		2: vec(t, 5, 0),
		3: vec(t, 1, 1),
		4: vec(t, 10, 10),
	}
	for id, v := range points {
		require.NoError(t, tree.Insert(id, v))
	}

	results, err := tree.KNNSearch(vec(t, 0, 0), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, uint64(1), results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestKNNSearchExhaustiveAgainstBruteForce(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(4))
	require.NoError(t, err)

	pts := []struct {
		id uint64
		v  vector.Vector
	}{
		{1, vec(t, 1, 2, 3, 4)},
		{2, vec(t, 4, 3, 2, 1)},
		{3, vec(t, 0, 0, 0, 0)},
		{4, vec(t, -1, -2, -3, -4)},
		{5, vec(t, 2, 2, 2, 2)},
		{6, vec(t, 9, 9, 9, 9)},
		{7, vec(t, 1, 1, 1, 1)},
	}
	for _, p := range pts {
		require.NoError(t, tree.Insert(p.id, p.v))
	}

	query := vec(t, 1, 1, 1, 2)
	results, err := tree.KNNSearch(query, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	var brute []index.SearchResult
	for _, p := range pts {
		d, err := distance.Euclidean(query, p.v)
		require.NoError(t, err)
		brute = append(brute, index.SearchResult{ID: p.id, Distance: d})
	}
	for i := 0; i < len(brute); i++ {
		for j := i + 1; j < len(brute); j++ {
			if brute[j].Distance < brute[i].Distance {
				brute[i], brute[j] = brute[j], brute[i]
			}
		}
	}
	for i, r := range results {
		assert.Equal(t, brute[i].ID, r.ID)
		assert.InDelta(t, brute[i].Distance, r.Distance, 1e-4)
	}
}

func TestTombstoneExcludesFromSearch(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(2))
	require.NoError(t, err)

	require.NoError(t, tree.Insert(1, vec(t, 0, 0)))
	require.NoError(t, tree.Insert(2, vec(t, 1, 1)))
	assert.Equal(t, 2, tree.Len())

	tree.Tombstone(1)
	assert.Equal(t, 1, tree.Len())

	results, err := tree.KNNSearch(vec(t, 0, 0), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestKNNSearchDimensionMismatch(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(3))
	require.NoError(t, err)
	_, err = tree.KNNSearch(vec(t, 1, 2), 1)
	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestKNNSearchKGreaterThanSizeReturnsAll(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(2))
	require.NoError(t, err)
	require.NoError(t, tree.Insert(1, vec(t, 0, 0)))
	require.NoError(t, tree.Insert(2, vec(t, 1, 1)))

	results, err := tree.KNNSearch(vec(t, 0, 0), 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRebuildResetsTombstones(t *testing.T) {
	tree, err := kdtree.New(kdtree.DefaultOptions(2))
	require.NoError(t, err)
	require.NoError(t, tree.Insert(1, vec(t, 0, 0)))
	tree.Tombstone(1)

	require.NoError(t, tree.Rebuild([]index.Item{
		{ID: 1, Vector: vec(t, 0, 0)},
		{ID: 2, Vector: vec(t, 5, 5)},
	}))
	assert.Equal(t, 2, tree.Len())
}
