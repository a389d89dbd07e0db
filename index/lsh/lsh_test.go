package lsh_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/index"
	"github.com/lhlRahman/vector-database/index/lsh"
	"github.com/lhlRahman/vector-database/vector"
)

func vec(t *testing.T, vs ...float32) vector.Vector {
	t.Helper()
	v, err := vector.FromSlice(vs)
	require.NoError(t, err)
	return v
}

func fixedOptions(dim int) lsh.Options {
	opts := lsh.DefaultOptions(dim)
	opts.Source = rand.NewSource(42)
	return opts
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	opts := fixedOptions(4)
	opts.NumTables = 0
	_, err := lsh.New(opts)
	assert.Error(t, err)

	opts2 := fixedOptions(4)
	opts2.NumHyperplanes = 65
	_, err = lsh.New(opts2)
	assert.Error(t, err)
}

func TestSelfSearchFindsItself(t *testing.T) {
	idx, err := lsh.New(fixedOptions(8))
	require.NoError(t, err)

	v := vec(t, 1, 2, 3, 4, 5, 6, 7, 8)
	require.NoError(t, idx.Insert(1, v))

	results, err := idx.KNNSearch(v, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-5)
}

func TestKNNSearchReturnsAscendingByDistance(t *testing.T) {
	idx, err := lsh.New(fixedOptions(4))
	require.NoError(t, err)

	for id, v := range map[uint64]vector.Vector{
		1: vec(t, 0, 0, 0, 0),
		2: vec(t, 1, 0, 0, 0),
		3: vec(t, 5, 5, 5, 5),
	} {
		require.NoError(t, idx.Insert(id, v))
	}

	results, err := idx.KNNSearch(vec(t, 0, 0, 0, 0), 3)
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestTombstoneExcludesFromSearch(t *testing.T) {
	idx, err := lsh.New(fixedOptions(4))
	require.NoError(t, err)

	v := vec(t, 1, 1, 1, 1)
	require.NoError(t, idx.Insert(1, v))
	assert.Equal(t, 1, idx.Len())

	idx.Tombstone(1)
	assert.Equal(t, 0, idx.Len())

	results, err := idx.KNNSearch(v, 5)
	require.NoError(t, err)
	assert.Len(t, results, 0)
}

func TestRebuildClearsTombstones(t *testing.T) {
	idx, err := lsh.New(fixedOptions(4))
	require.NoError(t, err)
	require.NoError(t, idx.Insert(1, vec(t, 1, 1, 1, 1)))
	idx.Tombstone(1)

	require.NoError(t, idx.Rebuild([]index.Item{
		{ID: 2, Vector: vec(t, 2, 2, 2, 2)},
	}))
	assert.Equal(t, 1, idx.Len())
	results, err := idx.KNNSearch(vec(t, 2, 2, 2, 2), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestDimensionMismatch(t *testing.T) {
	idx, err := lsh.New(fixedOptions(4))
	require.NoError(t, err)
	err = idx.Insert(1, vec(t, 1, 2))
	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)

	_, err = idx.KNNSearch(vec(t, 1, 2), 1)
	assert.ErrorAs(t, err, &dm)
}

// TestRecallAgainstBruteForce checks the soft recall property: across a
// modestly sized random dataset, LSH's top-1 result should coincide with
// the true nearest neighbor for at least 90% of query points.
func TestRecallAgainstBruteForce(t *testing.T) {
	const dim = 16
	const n = 200
	const queries = 50

	rng := rand.New(rand.NewSource(7))
	opts := lsh.DefaultOptions(dim)
	opts.Source = rand.NewSource(7)
	opts.NumTables = 32
	opts.NumHyperplanes = 4
	idx, err := lsh.New(opts)
	require.NoError(t, err)

	points := make(map[uint64]vector.Vector, n)
	for i := uint64(1); i <= n; i++ {
		vals := make([]float32, dim)
		for j := range vals {
			vals[j] = float32(rng.NormFloat64())
		}
		v, err := vector.FromSlice(vals)
		require.NoError(t, err)
		points[i] = v
		require.NoError(t, idx.Insert(i, v))
	}

	hits := 0
	for q := 0; q < queries; q++ {
		vals := make([]float32, dim)
		for j := range vals {
			vals[j] = float32(rng.NormFloat64())
		}
		query, err := vector.FromSlice(vals)
		require.NoError(t, err)

		var bestID uint64
		bestDist := float32(1e18)
		for id, v := range points {
			d, err := distance.Euclidean(query, v)
			require.NoError(t, err)
			if d < bestDist {
				bestDist = d
				bestID = id
			}
		}

		results, err := idx.KNNSearch(query, 1)
		require.NoError(t, err)
		if len(results) == 1 && results[0].ID == bestID {
			hits++
		}
	}

	recall := float64(hits) / float64(queries)
	assert.GreaterOrEqual(t, recall, 0.9, "recall %.2f too low for a smoke test with these parameters", recall)
}
