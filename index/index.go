// Package index defines the shared contract every nearest-neighbor index
// (exact KD-tree, approximate LSH, approximate HNSW) implements, plus the
// small set of error types and result shapes all three return.
package index

import (
	"errors"
	"fmt"

	"github.com/lhlRahman/vector-database/vector"
)

// ErrInvalidK is returned when k is negative.
var ErrInvalidK = errors.New("index: k must be non-negative")

// ErrEmpty names the empty-index condition. None of the three indexes
// returns it: k-NN search against an index with no live points returns
// an empty result and a nil error.
var ErrEmpty = errors.New("index: index is empty")

// ErrDimensionMismatch indicates a query vector's dimension does not match
// the index's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("index: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// SearchResult is one candidate returned by a k-NN search: the numeric
// id the point was inserted under (the database façade mints these
// point ids itself), and its distance to the query vector under the
// index's active metric.
type SearchResult struct {
	ID       uint64
	Distance float32
}

// Item is one (id, vector) pair, used to rebuild an index in bulk from
// the keyed map's current contents.
type Item struct {
	ID     uint64
	Vector vector.Vector
}

// Index is the contract shared by the exact KD-tree index and the
// approximate LSH/HNSW indexes.
//
// Deletion is deliberately not part of this interface as a structural
// mutation: per the spec this store is built against, none of the three
// index types physically remove a node on delete. Instead Tombstone
// marks an id as logically gone; the index excludes tombstoned ids from
// future search results but is not required to reclaim their storage
// until Rebuild is called.
type Index interface {
	// Dimension returns the fixed vector dimension this index was
	// constructed for.
	Dimension() int

	// Insert adds id/v to the index. v must have length Dimension().
	Insert(id uint64, v vector.Vector) error

	// KNNSearch returns up to k nearest neighbors to query, ascending by
	// distance, excluding tombstoned ids. It may return fewer than k if
	// the index (after tombstone filtering) holds fewer live points.
	KNNSearch(query vector.Vector, k int) ([]SearchResult, error)

	// Tombstone marks id as logically deleted. Safe to call for an id
	// the index does not know about.
	Tombstone(id uint64)

	// Rebuild discards all index state and bulk-loads items. The
	// database façade calls it after a tombstone fraction grows too
	// large, after a recovery pass has replayed the map from snapshot +
	// WAL, and when the metric or algorithm changes.
	Rebuild(items []Item) error

	// Len returns the number of live (non-tombstoned) points.
	Len() int
}
