// Package lsh implements an approximate nearest-neighbor index using
// random-hyperplane locality-sensitive hashing: T independent hash
// tables, each an H-bit signature formed from the sign of the dot
// product against H random hyperplanes plus a random per-hyperplane
// bias. Vectors that hash to the same
// bucket in any table are treated as candidates and re-ranked by exact
// distance.
package lsh

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/index"
	"github.com/lhlRahman/vector-database/vector"
)

// Options configures an Index.
type Options struct {
	// Dimension is the fixed vector length this index accepts.
	Dimension int
	// Metric ranks candidates found via hashing.
	Metric distance.Metric
	// NumTables is T, the number of independent hash tables. More
	// tables raise recall at the cost of more candidates to re-rank.
	NumTables int
	// NumHyperplanes is H, the number of random hyperplanes per table,
	// giving each table a 2^H-bucket signature space. Must be <= 64.
	NumHyperplanes int
	// Source seeds the random hyperplane generator. Supplying a fixed
	// source makes hyperplane generation (and therefore recall)
	// reproducible across runs, which is useful in tests.
	Source rand.Source
	// TombstoneRebuildRatio makes ShouldRebuild report true once
	// tombstoned ids make up at least this fraction of all ids ever
	// inserted. The index never rebuilds itself; the caller decides.
	// Zero disables the signal.
	TombstoneRebuildRatio float64
}

// DefaultOptions returns reasonable defaults: 8 tables of 16 hyperplanes
// each, seeded from the current time.
func DefaultOptions(dimension int) Options {
	return Options{
		Dimension:             dimension,
		Metric:                distance.MetricEuclidean,
		NumTables:             8,
		NumHyperplanes:        16,
		Source:                rand.NewSource(time.Now().UnixNano()),
		TombstoneRebuildRatio: 0.3,
	}
}

type table struct {
	hyperplanes [][]float32 // NumHyperplanes x Dimension
	bias        []float32   // NumHyperplanes, sampled once at construction
	buckets     map[uint64][]uint64
}

func (tb *table) signature(v vector.Vector) uint64 {
	raw := v.Raw()
	var sig uint64
	for i, plane := range tb.hyperplanes {
		var dot float32
		for j, c := range plane {
			dot += c * raw[j]
		}
		if dot+tb.bias[i] >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// Index is an approximate nearest-neighbor index backed by
// random-hyperplane LSH.
type Index struct {
	mu             sync.RWMutex
	dim            int
	distFn         distance.Func
	numHyperplanes int
	rebuildRatio   float64

	tables    []*table
	vectors   map[uint64]vector.Vector
	tombstone *roaring.Bitmap
	inserted  int // total ids ever inserted, including tombstoned; drives rebuildRatio
}

// New constructs an empty Index per opts.
func New(opts Options) (*Index, error) {
	if opts.Dimension <= 0 {
		return nil, vector.ErrZeroDimension
	}
	if opts.NumTables <= 0 || opts.NumHyperplanes <= 0 || opts.NumHyperplanes > 64 {
		return nil, &InvalidOptionsError{Reason: "NumTables and NumHyperplanes must be positive, and NumHyperplanes must be <= 64"}
	}
	fn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}
	src := opts.Source
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	rng := rand.New(src)

	idx := &Index{
		dim:            opts.Dimension,
		distFn:         fn,
		numHyperplanes: opts.NumHyperplanes,
		rebuildRatio:   opts.TombstoneRebuildRatio,
		vectors:        make(map[uint64]vector.Vector),
		tombstone:      roaring.New(),
	}
	idx.tables = make([]*table, opts.NumTables)
	for i := range idx.tables {
		idx.tables[i] = newTable(rng, opts.NumHyperplanes, opts.Dimension)
	}
	return idx, nil
}

func newTable(rng *rand.Rand, numHyperplanes, dim int) *table {
	planes := make([][]float32, numHyperplanes)
	bias := make([]float32, numHyperplanes)
	for i := range planes {
		plane := make([]float32, dim)
		for j := range plane {
			plane[j] = float32(rng.NormFloat64())
		}
		planes[i] = plane
		bias[i] = float32(rng.NormFloat64())
	}
	return &table{hyperplanes: planes, bias: bias, buckets: make(map[uint64][]uint64)}
}

// InvalidOptionsError is returned by New when Options are out of range.
type InvalidOptionsError struct{ Reason string }

func (e *InvalidOptionsError) Error() string { return "lsh: invalid options: " + e.Reason }

// Dimension implements index.Index.
func (idx *Index) Dimension() int { return idx.dim }

// Insert hashes v into every table and records it under each table's
// bucket for that signature.
func (idx *Index) Insert(id uint64, v vector.Vector) error {
	if v.Dim() != idx.dim {
		return &index.ErrDimensionMismatch{Expected: idx.dim, Actual: v.Dim()}
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cloned := v.Clone()
	idx.vectors[id] = cloned
	idx.inserted++
	for _, tb := range idx.tables {
		sig := tb.signature(cloned)
		tb.buckets[sig] = append(tb.buckets[sig], id)
	}
	return nil
}

// Tombstone marks id as logically deleted. Bucket entries referencing id
// are left in place until the next Rebuild.
func (idx *Index) Tombstone(id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.vectors[id]; !ok {
		return
	}
	idx.tombstone.Add(uint32(id))
}

// Len returns the number of live (non-tombstoned) points.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors) - int(idx.tombstone.GetCardinality())
}

// KNNSearch unions the candidates from every table's bucket matching
// query's signature, deduplicates, scores each by exact distance, and
// returns the k closest ascending. It is approximate: true nearest
// neighbors whose hash signature happens to differ from query's in
// every table are missed.
func (idx *Index) KNNSearch(query vector.Vector, k int) ([]index.SearchResult, error) {
	if k < 0 {
		return nil, index.ErrInvalidK
	}
	if query.Dim() != idx.dim {
		return nil, &index.ErrDimensionMismatch{Expected: idx.dim, Actual: query.Dim()}
	}
	if k == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[uint64]struct{})
	var candidates []uint64
	for _, tb := range idx.tables {
		sig := tb.signature(query)
		for _, id := range tb.buckets[sig] {
			if idx.tombstone.Contains(uint32(id)) {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}
	}

	results := make([]index.SearchResult, 0, len(candidates))
	for _, id := range candidates {
		v, ok := idx.vectors[id]
		if !ok {
			continue
		}
		d, err := idx.distFn(query, v)
		if err != nil {
			continue
		}
		results = append(results, index.SearchResult{ID: id, Distance: d})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Rebuild discards all tables and buckets (keeping hyperplanes) and
// bulk-loads items, discarding the tombstone set.
func (idx *Index) Rebuild(items []index.Item) error {
	idx.mu.Lock()
	for _, tb := range idx.tables {
		tb.buckets = make(map[uint64][]uint64)
	}
	idx.vectors = make(map[uint64]vector.Vector)
	idx.tombstone = roaring.New()
	idx.inserted = 0
	idx.mu.Unlock()

	for _, it := range items {
		if err := idx.Insert(it.ID, it.Vector); err != nil {
			return err
		}
	}
	return nil
}

// ShouldRebuild reports whether the tombstoned fraction of all ids ever
// inserted has crossed TombstoneRebuildRatio, meaning the caller should
// call Rebuild with the keyed map's current live items.
func (idx *Index) ShouldRebuild() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.rebuildRatio <= 0 || idx.inserted == 0 {
		return false
	}
	return float64(idx.tombstone.GetCardinality())/float64(idx.inserted) >= idx.rebuildRatio
}

var _ index.Index = (*Index)(nil)
