// Package vectordb is the root façade: it serializes mutations behind
// a single logical mutex, fans them out to the keyed map, the active
// nearest-neighbor index, and the persistence coordinator, and drives
// the recovery state machine at startup. Everything below this package
// — vector, distance, the three index implementations, store, wal,
// persistence, engine, and recovery — is a leaf or mid-layer collaborator;
// this is the only package that wires all of them into one database.
package vectordb

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lhlRahman/vector-database/dirlock"
	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/engine"
	"github.com/lhlRahman/vector-database/index"
	"github.com/lhlRahman/vector-database/index/hnsw"
	"github.com/lhlRahman/vector-database/index/kdtree"
	"github.com/lhlRahman/vector-database/index/lsh"
	"github.com/lhlRahman/vector-database/recovery"
	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/vector"
	"github.com/lhlRahman/vector-database/wal"
)

// SearchHit is one similarity search result: the application key and
// its distance to the query under the database's active metric.
type SearchHit struct {
	Key      string
	Distance float32
}

// SearchHitWithMetadata is a SearchHit that also carries the record's
// metadata payload, for callers that would otherwise pay for a
// separate Get per hit.
type SearchHitWithMetadata struct {
	Key      string
	Distance float32
	Metadata []byte
}

// BatchItem is one entry of a batch insert or update.
type BatchItem struct {
	Key      string
	Vector   vector.Vector
	Metadata []byte
}

// BatchResult reports what a batch operation did: how many items
// committed before the batch stopped, an opaque transaction id for
// correlating with logs, how long the batch took, and the first error
// or rejection encountered (nil if every item committed).
type BatchResult struct {
	Committed     int
	TransactionID string
	Duration      time.Duration
	FirstError    error
}

// RecoveryInfo reports what the last Initialize's recovery pass found
// and did.
type RecoveryInfo struct {
	State                recovery.State
	SnapshotSequence     uint64
	LastReplayedSequence uint64
	RecordsReplayed      int
	SnapshotDiscarded    bool
}

// Statistics reports the database's current counters. Every field except
// Persistence is read under the database's read lock; Persistence is
// read from the checkpoint coordinator after that lock is released.
type Statistics struct {
	Ready          bool
	Recovering     bool
	Algorithm      string
	DistanceMetric distance.Metric
	RecordCount    int
	IndexCount     int
	TotalInserts   uint64
	TotalUpdates   uint64
	TotalDeletes   uint64
	TotalSearches  uint64
	Persistence    engine.Statistics
}

// Database is the durable indexed vector store façade. Construct with
// New, then call Initialize before issuing any other operation.
type Database struct {
	mu sync.RWMutex // db_mutex: guards store, activeIndex, and every field below it

	cfg    Config
	logger *Logger

	dim    int
	metric distance.Metric

	algorithm   string
	activeIndex index.Index

	store *store.Map

	// Index point ids are a namespace distinct from the store's stable
	// per-key id: a fresh point id is minted on every insert *and*
	// update, so that tombstoning the old point id on an update can
	// never blind the freshly inserted replacement, which would happen
	// if both shared one numeric id. This is the "stable u64 node id in
	// a side table" scheme spec.md §9 recommends.
	nextPointID uint64
	keyToPoint  map[string]uint64
	pointToKey  map[uint64]string

	persistenceEnabled bool
	walWriter          *wal.Writer
	coordinator        *engine.Coordinator
	locks              []*dirlock.Lock

	machine      *recovery.Machine
	lastRecovery recovery.Result

	ready atomic.Bool

	batchCounter  atomic.Uint64
	totalInserts  atomic.Uint64
	totalUpdates  atomic.Uint64
	totalDeletes  atomic.Uint64
	totalSearches atomic.Uint64
}

// New constructs a Database per the supplied options. Dimension is
// required. The returned database is not yet usable: call Initialize.
func New(opts ...Option) (*Database, error) {
	cfg := applyOptions(opts...)
	if cfg.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "exact"
	}
	if _, err := distance.Provider(cfg.DistanceMetric); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NoopLogger()
	}

	db := &Database{
		cfg:        cfg,
		logger:     logger,
		dim:        cfg.Dimension,
		metric:     cfg.DistanceMetric,
		algorithm:  cfg.Algorithm,
		store:      store.New(),
		keyToPoint: make(map[string]uint64),
		pointToKey: make(map[uint64]string),
		machine:    recovery.New(logger),
	}

	idx, err := db.newIndex(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	db.activeIndex = idx
	db.persistenceEnabled = cfg.EnableAtomicPersistence
	return db, nil
}

func (db *Database) newIndex(algorithm string) (index.Index, error) {
	return db.newIndexWithMetric(algorithm, db.metric)
}

// newIndexWithMetric builds an index for algorithm/metric without
// touching db's fields, so callers can validate a candidate
// algorithm/metric pair before committing to it.
func (db *Database) newIndexWithMetric(algorithm string, metric distance.Metric) (index.Index, error) {
	switch algorithm {
	case "", "exact":
		return kdtree.New(kdtree.Options{Dimension: db.dim, Metric: metric})
	case "lsh":
		opts := db.cfg.LSH
		opts.Dimension = db.dim
		opts.Metric = metric
		if opts.NumTables == 0 {
			d := lsh.DefaultOptions(db.dim)
			opts.NumTables = d.NumTables
			if opts.NumHyperplanes == 0 {
				opts.NumHyperplanes = d.NumHyperplanes
			}
			opts.TombstoneRebuildRatio = d.TombstoneRebuildRatio
			opts.Source = d.Source
		}
		return lsh.New(opts)
	case "hnsw":
		opts := db.cfg.HNSW
		opts.Dimension = db.dim
		opts.Metric = metric
		if opts.M == 0 {
			d := hnsw.DefaultOptions(db.dim)
			opts.M = d.M
			if opts.EfConstruction == 0 {
				opts.EfConstruction = d.EfConstruction
			}
			opts.EfSearch = d.EfSearch
			opts.TombstoneRebuildRatio = d.TombstoneRebuildRatio
			opts.Source = d.Source
		}
		return hnsw.New(opts)
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

// Initialize runs the recovery state machine's analysis-then-recovery
// procedure and promotes the database to READY. It is an error to call
// twice without an intervening Shutdown.
func (db *Database) Initialize() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.ready.Load() {
		return ErrAlreadyInitialized
	}
	db.machine = recovery.New(db.logger)

	if db.persistenceEnabled {
		if err := db.acquireLocksLocked(); err != nil {
			return err
		}
		w, err := wal.Open(db.cfg.LogDirectory, db.cfg.LogRotationSize)
		if err != nil {
			db.releaseLocksLocked()
			return err
		}
		db.walWriter = w
		db.coordinator = engine.New(w, engine.Config{
			DataDirectory:        db.cfg.DataDirectory,
			CheckpointTriggerOps: db.cfg.CheckpointTriggerOps,
			RotationSize:         db.cfg.LogRotationSize,
		})
	}

	if _, err := db.machine.Transition(recovery.StartAnalysis); err != nil {
		return err
	}

	outcome := recovery.AnalysisOutcome{Next: recovery.Clean}
	if db.persistenceEnabled {
		o, err := recovery.Analyze(db.cfg.DataDirectory, db.cfg.LogDirectory)
		if err != nil {
			db.machine.Transition(recovery.FailureDetected)
			return err
		}
		outcome = o
	}
	if _, err := db.machine.CompleteAnalysis(outcome); err != nil {
		return err
	}

	switch outcome.Next {
	case recovery.Clean:
		db.machine.Transition(recovery.RecoveryStart)
		db.machine.Transition(recovery.RecoveryComplete)

	case recovery.RecoveryNeeded:
		db.machine.Transition(recovery.RecoveryStart)
		if db.coordinator != nil {
			db.coordinator.SetRecovering(true)
		}
		result, err := recovery.Recover(db.store, db.cfg.DataDirectory, db.cfg.LogDirectory)
		if err != nil {
			if db.coordinator != nil {
				db.coordinator.SetRecovering(false)
			}
			db.machine.Transition(recovery.FailureDetected)
			db.logger.LogRecovery(result.RecordsReplayed, result.SnapshotDiscarded, err)
			return &ErrRecoveryFailed{Reason: "replay failed", cause: err}
		}
		db.lastRecovery = result
		db.rebuildIndexLocked()
		if db.coordinator != nil {
			db.coordinator.RestoreCounters(result.SnapshotSequence)
			db.walWriter.SetNextSequence(result.LastReplayedSequence + 1)
			db.coordinator.SetRecovering(false)
		}
		db.logger.LogRecovery(result.RecordsReplayed, result.SnapshotDiscarded, nil)
		db.machine.Transition(recovery.RecoveryComplete)

	case recovery.Corrupted:
		db.machine.Transition(recovery.ManualIntervention)
		return &ErrRecoveryFailed{Reason: "data directory is corrupted and requires manual repair"}
	}

	if _, err := db.machine.EnterReady(); err != nil {
		return err
	}
	db.ready.Store(true)
	return nil
}

func (db *Database) acquireLocksLocked() error {
	seen := make(map[string]bool)
	for _, dir := range []string{db.cfg.DataDirectory, db.cfg.LogDirectory} {
		clean := filepath.Clean(dir)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		lock, err := dirlock.Acquire(dir)
		if err != nil {
			if errors.Is(err, dirlock.ErrLocked) {
				db.logger.Warn("vectordb: directory already locked by another process", "dir", dir)
				continue
			}
			db.releaseLocksLocked()
			return err
		}
		db.locks = append(db.locks, lock)
	}
	return nil
}

func (db *Database) releaseLocksLocked() {
	for _, l := range db.locks {
		l.Release()
	}
	db.locks = nil
}

// rebuildIndexLocked discards the active index's contents and reloads
// it from the store's current live records, minting a fresh point id
// per record. Callers must hold db.mu.
func (db *Database) rebuildIndexLocked() {
	db.keyToPoint = make(map[string]uint64)
	db.pointToKey = make(map[uint64]string)
	db.nextPointID = 0

	items := make([]index.Item, 0, db.store.Len())
	db.store.ForEach(func(r store.Record) bool {
		id := db.allocPointLocked(r.Key)
		items = append(items, index.Item{ID: id, Vector: r.Vector})
		return true
	})
	if err := db.activeIndex.Rebuild(items); err != nil {
		db.logger.Error("vectordb: index rebuild failed", "error", err)
	}
}

func (db *Database) allocPointLocked(key string) uint64 {
	db.nextPointID++
	id := db.nextPointID
	db.keyToPoint[key] = id
	db.pointToKey[id] = key
	return id
}

// Shutdown flushes and closes the WAL writer and releases directory
// locks. It is safe to call on a database that was never Initialized.
func (db *Database) Shutdown() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.ready.Load() {
		return nil
	}
	var err error
	if db.persistenceEnabled && db.walWriter != nil {
		err = db.walWriter.Close()
	}
	db.releaseLocksLocked()
	db.ready.Store(false)
	return err
}

func (db *Database) isReady() bool { return db.ready.Load() }

// Insert adds a new record. It returns (false, nil) for an expected
// business rejection (NaN component, duplicate key) and (false, err)
// for a programmer error (bad dimension, empty key, not ready).
func (db *Database) Insert(key string, v vector.Vector, metadata []byte) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if !db.isReady() {
		return false, ErrNotReady
	}
	if v.Dim() != db.dim {
		return false, &ErrDimensionMismatch{Expected: db.dim, Actual: v.Dim()}
	}
	if v.HasNaN() {
		return false, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.store.Contains(key) {
		return false, nil
	}
	if db.persistenceEnabled {
		payload := wal.EncodeInsert(wal.InsertPayload{Key: key, Vector: v, Metadata: metadata})
		if _, err := db.coordinator.AppendMutation(wal.RecordInsert, payload); err != nil {
			werr := translateError(err)
			db.logger.LogInsert(key, v.Dim(), false, werr)
			return false, werr
		}
	}

	if _, err := db.store.Insert(key, v, metadata); err != nil {
		werr := translateError(err)
		db.logger.LogInsert(key, v.Dim(), false, werr)
		return false, werr
	}
	id := db.allocPointLocked(key)
	if err := db.activeIndex.Insert(id, v); err != nil {
		werr := translateError(err)
		db.logger.LogInsert(key, v.Dim(), false, werr)
		return false, werr
	}

	db.totalInserts.Add(1)
	db.logger.LogInsert(key, v.Dim(), true, nil)
	db.checkpointIfDueLocked()
	return true, nil
}

// Update replaces the vector and metadata for an existing key. It
// returns (false, nil) if key is absent.
func (db *Database) Update(key string, v vector.Vector, metadata []byte) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if !db.isReady() {
		return false, ErrNotReady
	}
	if v.Dim() != db.dim {
		return false, &ErrDimensionMismatch{Expected: db.dim, Actual: v.Dim()}
	}
	if v.HasNaN() {
		return false, nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.store.Contains(key) {
		return false, nil
	}
	if db.persistenceEnabled {
		payload := wal.EncodeInsert(wal.InsertPayload{Key: key, Vector: v, Metadata: metadata})
		if _, err := db.coordinator.AppendMutation(wal.RecordUpdate, payload); err != nil {
			werr := translateError(err)
			db.logger.LogUpdate(key, false, werr)
			return false, werr
		}
	}

	if _, err := db.store.Update(key, v, metadata); err != nil {
		werr := translateError(err)
		db.logger.LogUpdate(key, false, werr)
		return false, werr
	}

	// The old point id is tombstoned rather than reused: KD-tree, LSH,
	// and HNSW all treat Insert as additive, so writing a new vector
	// under an id that already names a node would leave two entries
	// sharing an id rather than replacing one.
	if oldID, ok := db.keyToPoint[key]; ok {
		db.activeIndex.Tombstone(oldID)
		delete(db.pointToKey, oldID)
	}
	newID := db.allocPointLocked(key)
	if err := db.activeIndex.Insert(newID, v); err != nil {
		werr := translateError(err)
		db.logger.LogUpdate(key, false, werr)
		return false, werr
	}

	db.totalUpdates.Add(1)
	db.logger.LogUpdate(key, true, nil)
	db.checkpointIfDueLocked()
	db.maybeRebuildForTombstonesLocked()
	return true, nil
}

// Remove deletes key. It returns (false, nil) if key is absent.
func (db *Database) Remove(key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if !db.isReady() {
		return false, ErrNotReady
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.store.Contains(key) {
		return false, nil
	}
	if db.persistenceEnabled {
		payload := wal.EncodeDelete(wal.DeletePayload{Key: key})
		if _, err := db.coordinator.AppendMutation(wal.RecordDelete, payload); err != nil {
			werr := translateError(err)
			db.logger.LogDelete(key, false, werr)
			return false, werr
		}
	}

	if _, err := db.store.Delete(key); err != nil {
		werr := translateError(err)
		db.logger.LogDelete(key, false, werr)
		return false, werr
	}
	if id, ok := db.keyToPoint[key]; ok {
		db.activeIndex.Tombstone(id)
		delete(db.keyToPoint, key)
		delete(db.pointToKey, id)
	}

	db.totalDeletes.Add(1)
	db.logger.LogDelete(key, true, nil)
	db.checkpointIfDueLocked()
	db.maybeRebuildForTombstonesLocked()
	return true, nil
}

// Get returns the vector and metadata stored under key.
func (db *Database) Get(key string) (vector.Vector, []byte, bool, error) {
	if !db.isReady() {
		return vector.Vector{}, nil, false, ErrNotReady
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, err := db.store.Get(key)
	if err != nil {
		return vector.Vector{}, nil, false, nil
	}
	return rec.Vector, rec.Metadata, true, nil
}

// GetMetadata returns only the metadata stored under key.
func (db *Database) GetMetadata(key string) ([]byte, bool, error) {
	if !db.isReady() {
		return nil, false, ErrNotReady
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	md, err := db.store.GetMetadata(key)
	if err != nil {
		return nil, false, nil
	}
	return md, true, nil
}

// SimilaritySearch returns up to k nearest neighbors to query under the
// active index and metric, ascending by distance.
func (db *Database) SimilaritySearch(query vector.Vector, k int) ([]SearchHit, error) {
	if !db.isReady() {
		return nil, ErrNotReady
	}
	if k < 0 {
		return nil, translateError(index.ErrInvalidK)
	}
	if query.Dim() != db.dim {
		return nil, &ErrDimensionMismatch{Expected: db.dim, Actual: query.Dim()}
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	results, err := db.activeIndex.KNNSearch(query, k)
	if err != nil {
		werr := translateError(err)
		db.logger.LogSearch(k, 0, werr)
		return nil, werr
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		key, ok := db.pointToKey[r.ID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Key: key, Distance: r.Distance})
	}
	db.totalSearches.Add(1)
	db.logger.LogSearch(k, len(hits), nil)
	return hits, nil
}

// SimilaritySearchWithMetadata is SimilaritySearch plus each hit's
// metadata payload.
func (db *Database) SimilaritySearchWithMetadata(query vector.Vector, k int) ([]SearchHitWithMetadata, error) {
	if !db.isReady() {
		return nil, ErrNotReady
	}
	if k < 0 {
		return nil, translateError(index.ErrInvalidK)
	}
	if query.Dim() != db.dim {
		return nil, &ErrDimensionMismatch{Expected: db.dim, Actual: query.Dim()}
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	results, err := db.activeIndex.KNNSearch(query, k)
	if err != nil {
		werr := translateError(err)
		db.logger.LogSearch(k, 0, werr)
		return nil, werr
	}

	hits := make([]SearchHitWithMetadata, 0, len(results))
	for _, r := range results {
		key, ok := db.pointToKey[r.ID]
		if !ok {
			continue
		}
		rec, err := db.store.Get(key)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHitWithMetadata{Key: key, Distance: r.Distance, Metadata: rec.Metadata})
	}
	db.totalSearches.Add(1)
	db.logger.LogSearch(k, len(hits), nil)
	return hits, nil
}

// BatchSimilaritySearch runs SimilaritySearch for each query in order.
// The first failing query stops the batch: its error is returned and no
// results are.
func (db *Database) BatchSimilaritySearch(queries []vector.Vector, k int) ([][]SearchHit, error) {
	if !db.cfg.EnableBatchOperations {
		return nil, ErrBatchDisabled
	}
	out := make([][]SearchHit, len(queries))
	for i, q := range queries {
		hits, err := db.SimilaritySearch(q, k)
		if err != nil {
			return nil, err
		}
		out[i] = hits
	}
	return out, nil
}

func (db *Database) newTransactionID() string {
	return fmt.Sprintf("batch-%d", db.batchCounter.Add(1))
}

// BatchInsert inserts each item in order. Each insert is atomic on its
// own; the batch as a whole is not — the first rejection or error stops
// it and is reported as FirstError, with Committed holding how many
// items landed before that point.
func (db *Database) BatchInsert(items []BatchItem) (BatchResult, error) {
	if !db.cfg.EnableBatchOperations {
		return BatchResult{}, ErrBatchDisabled
	}
	start := time.Now()
	res := BatchResult{TransactionID: db.newTransactionID()}
	for _, it := range items {
		ok, err := db.Insert(it.Key, it.Vector, it.Metadata)
		if err != nil {
			res.FirstError = err
			break
		}
		if !ok {
			res.FirstError = fmt.Errorf("vectordb: batch insert rejected key %q", it.Key)
			break
		}
		res.Committed++
	}
	res.Duration = time.Since(start)
	return res, nil
}

// BatchUpdate updates each item in order, stopping at the first
// rejection or error, same semantics as BatchInsert.
func (db *Database) BatchUpdate(items []BatchItem) (BatchResult, error) {
	if !db.cfg.EnableBatchOperations {
		return BatchResult{}, ErrBatchDisabled
	}
	start := time.Now()
	res := BatchResult{TransactionID: db.newTransactionID()}
	for _, it := range items {
		ok, err := db.Update(it.Key, it.Vector, it.Metadata)
		if err != nil {
			res.FirstError = err
			break
		}
		if !ok {
			res.FirstError = fmt.Errorf("vectordb: batch update missing key %q", it.Key)
			break
		}
		res.Committed++
	}
	res.Duration = time.Since(start)
	return res, nil
}

// BatchDelete deletes each key in order, stopping at the first
// rejection or error, same semantics as BatchInsert.
func (db *Database) BatchDelete(keys []string) (BatchResult, error) {
	if !db.cfg.EnableBatchOperations {
		return BatchResult{}, ErrBatchDisabled
	}
	start := time.Now()
	res := BatchResult{TransactionID: db.newTransactionID()}
	for _, key := range keys {
		ok, err := db.Remove(key)
		if err != nil {
			res.FirstError = err
			break
		}
		if !ok {
			res.FirstError = fmt.Errorf("vectordb: batch delete missing key %q", key)
			break
		}
		res.Committed++
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Flush forces the WAL writer's buffered bytes to stable storage via a
// COMMIT marker record and reports the number of ops written to the WAL
// since the last checkpoint. With this store's log-then-mutate
// discipline every successful mutation is already fsynced before it
// returns, so Flush's marker is an ordering fence for callers that want
// to know no earlier mutation is still in flight, not a durability gap
// it closes.
func (db *Database) Flush() (int, error) {
	if !db.isReady() {
		return 0, ErrNotReady
	}
	if !db.persistenceEnabled {
		return 0, nil
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.coordinator.AppendCommitMarker(); err != nil {
		return 0, translateError(err)
	}
	return db.coordinator.UncommittedOps(), nil
}

// Checkpoint runs the six-step checkpoint procedure immediately,
// regardless of whether the op-count or WAL-size threshold has been
// crossed.
func (db *Database) Checkpoint() (engine.CheckpointResult, error) {
	if !db.isReady() {
		return engine.CheckpointResult{}, ErrNotReady
	}
	if !db.persistenceEnabled {
		return engine.CheckpointResult{}, ErrPersistenceDisabled
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	res, err := db.runCheckpointLocked(true)
	if err != nil {
		return res, translateError(err)
	}
	return res, nil
}

// checkpointIfDueLocked runs an automatic, threshold-gated checkpoint.
// Callers must hold db.mu for writing.
func (db *Database) checkpointIfDueLocked() {
	if !db.persistenceEnabled || !db.coordinator.ShouldCheckpoint() {
		return
	}
	if _, err := db.runCheckpointLocked(false); err != nil {
		db.logger.LogCheckpoint(0, false, err)
	}
}

func (db *Database) runCheckpointLocked(forced bool) (engine.CheckpointResult, error) {
	records := make([]store.Record, 0, db.store.Len())
	db.store.ForEach(func(r store.Record) bool {
		records = append(records, r)
		return true
	})
	res, err := db.coordinator.Checkpoint(records, forced)
	db.logger.LogCheckpoint(res.Sequence, res.Ran, err)
	return res, err
}

// maybeRebuildForTombstonesLocked rebuilds the active index from the
// store's current live records once the index reports its tombstoned
// fraction has crossed its configured threshold. Only LSH and HNSW
// implement this signal; KD-tree's Tombstone is O(1) forever and never
// requests a rebuild.
func (db *Database) maybeRebuildForTombstonesLocked() {
	type rebuildable interface{ ShouldRebuild() bool }
	if r, ok := db.activeIndex.(rebuildable); ok && r.ShouldRebuild() {
		db.rebuildIndexLocked()
	}
}

// SetDistanceMetric switches the pairwise metric every index ranks
// candidates by. Because every index type fixes its metric at
// construction, this rebuilds the active index from the store's
// current contents.
func (db *Database) SetDistanceMetric(m distance.Metric) error {
	if _, err := distance.Provider(m); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	idx, err := db.newIndexWithMetric(db.algorithm, m)
	if err != nil {
		return err
	}
	db.metric = m
	db.cfg.DistanceMetric = m
	db.activeIndex = idx
	db.rebuildIndexLocked()
	return nil
}

// SetApproximateAlgorithm switches the active index, rebuilding it from
// the store's current contents. p1 and p2 are algorithm-specific: for
// "lsh" they are (NumTables, NumHyperplanes); for "hnsw" they are
// (M, EfConstruction); for "exact" they are ignored. A value of 0 for
// either leaves that setting at its current value.
func (db *Database) SetApproximateAlgorithm(name string, p1, p2 int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	switch name {
	case "", "exact":
	case "lsh":
		if p1 > 0 {
			db.cfg.LSH.NumTables = p1
		}
		if p2 > 0 {
			db.cfg.LSH.NumHyperplanes = p2
		}
	case "hnsw":
		if p1 > 0 {
			db.cfg.HNSW.M = p1
		}
		if p2 > 0 {
			db.cfg.HNSW.EfConstruction = p2
		}
	default:
		return ErrUnsupportedAlgorithm
	}

	idx, err := db.newIndex(name)
	if err != nil {
		return err
	}
	db.algorithm = name
	if name == "" {
		db.algorithm = "exact"
	}
	db.activeIndex = idx
	db.rebuildIndexLocked()
	return nil
}

// UpdatePersistenceConfig applies a runtime change to the checkpoint
// and rotation thresholds. Zero fields in pc leave the corresponding
// current setting unchanged.
func (db *Database) UpdatePersistenceConfig(pc PersistenceConfig) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if pc.CheckpointTriggerOps > 0 {
		db.cfg.CheckpointTriggerOps = pc.CheckpointTriggerOps
	}
	if pc.LogRotationSize > 0 {
		db.cfg.LogRotationSize = pc.LogRotationSize
	}
	if pc.MaxLogFiles > 0 {
		db.cfg.MaxLogFiles = pc.MaxLogFiles
	}
	if db.coordinator != nil {
		db.coordinator.UpdateConfig(engine.Config{
			CheckpointTriggerOps: db.cfg.CheckpointTriggerOps,
			RotationSize:         db.cfg.LogRotationSize,
		})
		if db.walWriter != nil && pc.LogRotationSize > 0 {
			db.walWriter.SetRotationSize(pc.LogRotationSize)
		}
	}
	return nil
}

// Statistics reports the database's current counters.
func (db *Database) Statistics() Statistics {
	db.mu.RLock()
	stats := Statistics{
		Ready:          db.ready.Load(),
		Recovering:     db.machine.State() == recovery.Recovering,
		Algorithm:      db.algorithm,
		DistanceMetric: db.metric,
		RecordCount:    db.store.Len(),
		IndexCount:     db.activeIndex.Len(),
		TotalInserts:   db.totalInserts.Load(),
		TotalUpdates:   db.totalUpdates.Load(),
		TotalDeletes:   db.totalDeletes.Load(),
		TotalSearches:  db.totalSearches.Load(),
	}
	coordinator := db.coordinator
	db.mu.RUnlock()

	if coordinator != nil {
		stats.Persistence = coordinator.Statistics()
	}
	return stats
}

// RecoveryInfo reports the outcome of the last Initialize's recovery
// pass.
func (db *Database) RecoveryInfo() RecoveryInfo {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return RecoveryInfo{
		State:                db.machine.State(),
		SnapshotSequence:     db.lastRecovery.SnapshotSequence,
		LastReplayedSequence: db.lastRecovery.LastReplayedSequence,
		RecordsReplayed:      db.lastRecovery.RecordsReplayed,
		SnapshotDiscarded:    db.lastRecovery.SnapshotDiscarded,
	}
}
