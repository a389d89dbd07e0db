// Package hnsw implements an approximate nearest-neighbor index using a
// hierarchical navigable small world graph: a multi-layer proximity
// graph where higher layers hold exponentially fewer nodes and serve as
// coarse navigation shortcuts into the dense bottom layer.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/index"
	"github.com/lhlRahman/vector-database/vector"
)

// Options configures a Graph.
type Options struct {
	// Dimension is the fixed vector length this graph accepts.
	Dimension int
	// Metric ranks candidates during both construction and search.
	Metric distance.Metric
	// M is the target number of bidirectional links per node at every
	// layer above the base layer; the base layer allows up to 2*M.
	M int
	// EfConstruction is the candidate list size explored while wiring a
	// newly inserted node into each layer. Larger values build a
	// higher-quality graph at higher insert cost.
	EfConstruction int
	// EfSearch is the default candidate list size explored at query
	// time at the base layer. Larger values raise recall at higher
	// query cost.
	EfSearch int
	// Source seeds the per-node level assignment. A fixed source makes
	// graph shape reproducible across runs.
	Source rand.Source
	// TombstoneRebuildRatio triggers ShouldRebuild once tombstoned ids
	// reach this fraction of all ids ever inserted. Zero disables it.
	TombstoneRebuildRatio float64
}

// DefaultOptions returns the conventional defaults: M=16,
// efConstruction=200, efSearch=50.
func DefaultOptions(dimension int) Options {
	return Options{
		Dimension:             dimension,
		Metric:                distance.MetricEuclidean,
		M:                     16,
		EfConstruction:        200,
		EfSearch:              50,
		Source:                rand.NewSource(time.Now().UnixNano()),
		TombstoneRebuildRatio: 0.3,
	}
}

type node struct {
	id        uint64
	vec       vector.Vector
	neighbors [][]uint64 // per level, level 0..len-1
}

// Graph is an approximate nearest-neighbor index backed by a
// hierarchical navigable small world graph.
type Graph struct {
	mu     sync.RWMutex
	dim    int
	distFn distance.Func

	m              int
	m0             int
	efConstruction int
	efSearch       int
	levelMult      float64
	rng            *rand.Rand

	nodes      map[uint64]*node
	entryPoint uint64
	maxLevel   int
	hasEntry   bool

	tombstone *roaring.Bitmap
	inserted  int
	rebuildR  float64
}

// New constructs an empty Graph per opts.
func New(opts Options) (*Graph, error) {
	if opts.Dimension <= 0 {
		return nil, vector.ErrZeroDimension
	}
	if opts.M <= 0 {
		return nil, &InvalidOptionsError{Reason: "M must be positive"}
	}
	fn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}
	src := opts.Source
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	efConstruction := opts.EfConstruction
	if efConstruction <= 0 {
		efConstruction = 200
	}
	efSearch := opts.EfSearch
	if efSearch <= 0 {
		efSearch = 50
	}
	return &Graph{
		dim:            opts.Dimension,
		distFn:         fn,
		m:              opts.M,
		m0:             2 * opts.M,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		levelMult:      1 / math.Log(float64(opts.M)),
		rng:            rand.New(src),
		nodes:          make(map[uint64]*node),
		tombstone:      roaring.New(),
		rebuildR:       opts.TombstoneRebuildRatio,
	}, nil
}

// InvalidOptionsError is returned by New when Options are out of range.
type InvalidOptionsError struct{ Reason string }

func (e *InvalidOptionsError) Error() string { return "hnsw: invalid options: " + e.Reason }

// Dimension implements index.Index.
func (g *Graph) Dimension() int { return g.dim }

func (g *Graph) sampleLevel() int {
	u := g.rng.Float64()
	for u == 0 {
		u = g.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * g.levelMult))
}

func (g *Graph) capAt(level int) int {
	if level == 0 {
		return g.m0
	}
	return g.m
}

// Insert wires id/v into the graph: a random level is sampled for the
// node, the graph is greedily descended from the current entry point
// down to that level, and at each level from there to 0 the node is
// linked to its EfConstruction-explored nearest neighbors, trimming any
// neighbor whose degree now exceeds its layer's cap.
func (g *Graph) Insert(id uint64, v vector.Vector) error {
	if v.Dim() != g.dim {
		return &index.ErrDimensionMismatch{Expected: g.dim, Actual: v.Dim()}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	level := g.sampleLevel()
	n := &node{id: id, vec: v.Clone(), neighbors: make([][]uint64, level+1)}
	g.nodes[id] = n
	g.inserted++

	if !g.hasEntry {
		g.entryPoint = id
		g.maxLevel = level
		g.hasEntry = true
		return nil
	}

	curr := g.entryPoint
	for lvl := g.maxLevel; lvl > level; lvl-- {
		curr = g.greedyDescend(v, curr, lvl)
	}

	for lvl := min(level, g.maxLevel); lvl >= 0; lvl-- {
		candidates := g.searchLayer(v, curr, g.efConstruction, lvl, false)
		selected := selectClosest(candidates, g.m)
		n.neighbors[lvl] = idsOf(selected)
		for _, c := range selected {
			g.addLink(c.id, id, lvl)
		}
		if len(candidates) > 0 {
			curr = candidates[0].id
		}
	}

	if level > g.maxLevel {
		g.entryPoint = id
		g.maxLevel = level
	}
	return nil
}

// addLink adds a bidirectional edge to from->to and trims from's
// neighbor list at level if it now exceeds its cap, keeping the
// closest survivors.
func (g *Graph) addLink(from, to uint64, level int) {
	fn := g.nodes[from]
	if fn == nil {
		return
	}
	fn.neighbors[level] = append(fn.neighbors[level], to)
	cap := g.capAt(level)
	if len(fn.neighbors[level]) <= cap {
		return
	}
	items := make([]item, 0, len(fn.neighbors[level]))
	for _, nid := range fn.neighbors[level] {
		if other := g.nodes[nid]; other != nil {
			d, err := g.distFn(fn.vec, other.vec)
			if err == nil {
				items = append(items, item{id: nid, dist: d})
			}
		}
	}
	selected := selectClosest(items, cap)
	fn.neighbors[level] = idsOf(selected)
}

// greedyDescend returns the locally closest node to query reachable by
// single-step hops from entry at the given level.
func (g *Graph) greedyDescend(query vector.Vector, entry uint64, level int) uint64 {
	best := entry
	bestNode := g.nodes[entry]
	if bestNode == nil {
		return entry
	}
	bestDist, _ := g.distFn(query, bestNode.vec)
	improved := true
	for improved {
		improved = false
		if level >= len(bestNode.neighbors) {
			break
		}
		for _, nid := range bestNode.neighbors[level] {
			cand := g.nodes[nid]
			if cand == nil {
				continue
			}
			d, err := g.distFn(query, cand.vec)
			if err != nil {
				continue
			}
			if d < bestDist {
				bestDist = d
				best = nid
				bestNode = cand
				improved = true
			}
		}
	}
	return best
}

// Tombstone marks id as logically deleted. The node remains as a graph
// hop for other nodes' traversal but is excluded from search results.
func (g *Graph) Tombstone(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return
	}
	g.tombstone.Add(uint32(id))
}

// Len returns the number of live (non-tombstoned) points.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes) - int(g.tombstone.GetCardinality())
}

// KNNSearch greedily descends from the entry point to layer 0, explores
// EfSearch (or k if larger) candidates there, filters tombstoned ids,
// and returns the k closest ascending.
func (g *Graph) KNNSearch(query vector.Vector, k int) ([]index.SearchResult, error) {
	if k < 0 {
		return nil, index.ErrInvalidK
	}
	if query.Dim() != g.dim {
		return nil, &index.ErrDimensionMismatch{Expected: g.dim, Actual: query.Dim()}
	}
	if k == 0 {
		return nil, nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasEntry {
		return nil, nil
	}

	curr := g.entryPoint
	for lvl := g.maxLevel; lvl > 0; lvl-- {
		curr = g.greedyDescend(query, curr, lvl)
	}

	ef := g.efSearch
	if k > ef {
		ef = k
	}
	candidates := g.searchLayer(query, curr, ef, 0, true)

	out := make([]index.SearchResult, 0, k)
	for _, c := range candidates {
		if len(out) == k {
			break
		}
		out = append(out, index.SearchResult{ID: c.id, Distance: c.dist})
	}
	return out, nil
}

// Rebuild discards the graph entirely and bulk-loads items in the order
// given, using fresh level sampling for each.
func (g *Graph) Rebuild(items []index.Item) error {
	g.mu.Lock()
	g.nodes = make(map[uint64]*node)
	g.hasEntry = false
	g.maxLevel = 0
	g.tombstone = roaring.New()
	g.inserted = 0
	g.mu.Unlock()

	for _, it := range items {
		if err := g.Insert(it.ID, it.Vector); err != nil {
			return err
		}
	}
	return nil
}

// ShouldRebuild reports whether the tombstoned fraction of all ids ever
// inserted has crossed TombstoneRebuildRatio.
func (g *Graph) ShouldRebuild() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.rebuildR <= 0 || g.inserted == 0 {
		return false
	}
	return float64(g.tombstone.GetCardinality())/float64(g.inserted) >= g.rebuildR
}

var _ index.Index = (*Graph)(nil)

type item struct {
	id   uint64
	dist float32
}

// minItemHeap pops the smallest distance first; used for the candidate
// frontier during layer search.
type minItemHeap []item

func (h minItemHeap) Len() int            { return len(h) }
func (h minItemHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minItemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minItemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *minItemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// maxItemHeap pops the largest distance first; used to keep the result
// set bounded to ef, discarding the worst candidate.
type maxItemHeap []item

func (h maxItemHeap) Len() int            { return len(h) }
func (h maxItemHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxItemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxItemHeap) Push(x interface{}) { *h = append(*h, x.(item)) }
func (h *maxItemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// searchLayer runs the standard HNSW greedy-frontier search at level,
// starting from entry, bounded to ef results. When excludeTombstoned is
// true, tombstoned nodes are still traversed as hops but never added to
// the result set.
func (g *Graph) searchLayer(query vector.Vector, entry uint64, ef int, level int, excludeTombstoned bool) []item {
	entryNode := g.nodes[entry]
	if entryNode == nil {
		return nil
	}
	d0, _ := g.distFn(query, entryNode.vec)

	visited := map[uint64]bool{entry: true}
	candidates := &minItemHeap{{id: entry, dist: d0}}
	heap.Init(candidates)

	results := &maxItemHeap{}
	if !excludeTombstoned || !g.tombstone.Contains(uint32(entry)) {
		heap.Push(results, item{id: entry, dist: d0})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(item)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		cn := g.nodes[c.id]
		if cn == nil || level >= len(cn.neighbors) {
			continue
		}
		for _, nid := range cn.neighbors[level] {
			if visited[nid] {
				continue
			}
			visited[nid] = true
			nn := g.nodes[nid]
			if nn == nil {
				continue
			}
			d, err := g.distFn(query, nn.vec)
			if err != nil {
				continue
			}
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, item{id: nid, dist: d})
				if !excludeTombstoned || !g.tombstone.Contains(uint32(nid)) {
					heap.Push(results, item{id: nid, dist: d})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	out := make([]item, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(item)
	}
	return out
}

func selectClosest(items []item, n int) []item {
	sorted := append([]item(nil), items...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].dist < sorted[i].dist {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func idsOf(items []item) []uint64 {
	ids := make([]uint64, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids
}
