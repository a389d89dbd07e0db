// Package engine implements the persistence coordinator: the component
// that sits between the keyed map/indexes and the commit log, appending
// a WAL record for every mutation before it is allowed to touch memory,
// and deciding when to fold the WAL into a fresh snapshot.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/lhlRahman/vector-database/persistence"
	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/wal"
)

// ErrRecovering is returned by every mutation path while the database
// is replaying its WAL during startup recovery.
var ErrRecovering = errors.New("engine: database is recovering, mutations are rejected")

// Config configures a Coordinator.
type Config struct {
	// DataDirectory holds the canonical snapshot (main.db) and
	// transient checkpoint temp files.
	DataDirectory string
	// CheckpointTriggerOps is the ops-since-last-checkpoint threshold
	// that makes ShouldCheckpoint report true.
	CheckpointTriggerOps int
	// RotationSize is the byte threshold, mirrored from the WAL
	// writer's own configuration, used only to evaluate
	// ShouldCheckpoint's second condition.
	RotationSize int64
	// MinCheckpointInterval throttles how often an automatically
	// triggered checkpoint (as opposed to an explicit API call) may
	// actually run, so a sustained burst of writes crossing the op
	// threshold repeatedly doesn't queue a checkpoint per insert.
	MinCheckpointInterval time.Duration
}

// Statistics reports the coordinator's counters for the façade's
// statistics() operation.
type Statistics struct {
	OpsSinceLastCheckpoint int
	TotalCheckpoints       int
	LastCheckpointSequence uint64
	WAL                    wal.Statistics
}

// Coordinator is the persistence coordinator. Construct with New.
type Coordinator struct {
	mu sync.Mutex

	wal     *wal.Writer
	cfg     Config
	sf      singleflight.Group
	limiter *rate.Limiter

	recovering             bool
	opsSinceLastCheckpoint int
	totalCheckpoints       int
	lastCheckpointSequence uint64
}

// New constructs a Coordinator over an already-open WAL writer.
func New(w *wal.Writer, cfg Config) *Coordinator {
	interval := cfg.MinCheckpointInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Coordinator{
		wal:     w,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// SetRecovering marks whether the database is currently replaying its
// WAL; while true, every mutation path is rejected.
func (c *Coordinator) SetRecovering(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recovering = v
}

// IsRecovering reports the current recovery flag.
func (c *Coordinator) IsRecovering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recovering
}

// RestoreCounters seeds the last checkpoint sequence after a recovery
// pass, so Statistics reports the snapshot the data was recovered from.
// ShouldCheckpoint does not read it: its op count starts from zero in
// every process.
func (c *Coordinator) RestoreCounters(lastCheckpointSequence uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheckpointSequence = lastCheckpointSequence
}

// AppendMutation writes an INSERT/UPDATE/DELETE record to the WAL and
// counts it toward the checkpoint trigger. Per the spec this must
// happen strictly before the caller mutates the keyed map and indexes:
// a WAL-append failure must leave in-memory state untouched.
func (c *Coordinator) AppendMutation(typ wal.RecordType, payload []byte) (wal.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recovering {
		return wal.Record{}, ErrRecovering
	}
	rec, err := c.wal.Append(typ, payload)
	if err != nil {
		return wal.Record{}, err
	}
	c.opsSinceLastCheckpoint++
	return rec, nil
}

// AppendCommitMarker writes a COMMIT record: a durability marker used
// by flush() when the caller wants every prior mutation fsynced without
// paying for a full snapshot.
func (c *Coordinator) AppendCommitMarker() (wal.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recovering {
		return wal.Record{}, ErrRecovering
	}
	return c.wal.Append(wal.RecordCommit, nil)
}

// UncommittedOps returns the number of mutations appended to the WAL
// since the last checkpoint — what flush() reports as the WAL-resident
// operation count still awaiting a full snapshot.
func (c *Coordinator) UncommittedOps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opsSinceLastCheckpoint
}

// ShouldCheckpoint reports whether the op-count or WAL-segment-size
// threshold has been crossed.
func (c *Coordinator) ShouldCheckpoint() bool {
	c.mu.Lock()
	ops := c.opsSinceLastCheckpoint
	trigger := c.cfg.CheckpointTriggerOps
	c.mu.Unlock()

	if trigger > 0 && ops >= trigger {
		return true
	}
	if c.cfg.RotationSize > 0 && c.wal.Statistics().CurrentSegmentBytes >= c.cfg.RotationSize {
		return true
	}
	return false
}

// CheckpointResult reports what a checkpoint attempt did.
type CheckpointResult struct {
	Sequence uint64
	Ran      bool
}

// Checkpoint runs the six-step checkpoint procedure: snapshot the
// records the caller passes (a point-in-time copy of the keyed map),
// install them atomically, mark the WAL with a CHECKPOINT record,
// rotate to a fresh segment, and prune every segment now fully covered.
//
// When forced is false (an automatic, threshold-triggered checkpoint)
// the call may be silently skipped if MinCheckpointInterval hasn't
// elapsed since the last one; an explicit API call always sets forced
// so it is never throttled. Concurrent callers racing to checkpoint at
// the same time collapse into a single actual execution via
// singleflight; all of them observe its result.
func (c *Coordinator) Checkpoint(records []store.Record, forced bool) (CheckpointResult, error) {
	if !forced && !c.limiter.Allow() {
		return CheckpointResult{}, nil
	}

	v, err, _ := c.sf.Do("checkpoint", func() (interface{}, error) {
		return c.runCheckpoint(records)
	})
	if err != nil {
		return CheckpointResult{}, err
	}
	return v.(CheckpointResult), nil
}

func (c *Coordinator) runCheckpoint(records []store.Record) (CheckpointResult, error) {
	stats := c.wal.Statistics()
	seq := uint64(0)
	if stats.NextSequence > 0 {
		seq = stats.NextSequence - 1
	}

	snapshotPath := c.cfg.DataDirectory + "/" + persistenceSnapshotFileName
	w, err := persistence.NewWriter(snapshotPath, seq)
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("engine: opening snapshot writer: %w", err)
	}
	if err := w.WriteSnapshot(seq, time.Now().UnixNano()/int64(time.Microsecond), records); err != nil {
		w.Abort()
		return CheckpointResult{}, fmt.Errorf("engine: writing snapshot: %w", err)
	}
	if err := w.Commit(); err != nil {
		return CheckpointResult{}, fmt.Errorf("engine: committing snapshot: %w", err)
	}

	marker, err := c.wal.Append(wal.RecordCheckpoint, wal.EncodeCheckpoint(wal.CheckpointPayload{
		SnapshotSequence: seq,
		Path:             snapshotPath,
	}))
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("engine: appending checkpoint record: %w", err)
	}
	if err := c.wal.Rotate(); err != nil {
		return CheckpointResult{}, fmt.Errorf("engine: rotating WAL: %w", err)
	}
	if err := c.wal.PruneUpTo(marker.Sequence); err != nil {
		return CheckpointResult{}, fmt.Errorf("engine: pruning WAL: %w", err)
	}

	c.mu.Lock()
	c.opsSinceLastCheckpoint = 0
	c.totalCheckpoints++
	c.lastCheckpointSequence = seq
	c.mu.Unlock()

	return CheckpointResult{Sequence: seq, Ran: true}, nil
}

const persistenceSnapshotFileName = "main.db"

// UpdateConfig applies a runtime change to the checkpoint thresholds.
// Zero fields in cfg leave the corresponding current setting unchanged,
// so a caller can adjust just one knob without re-reading the others.
func (c *Coordinator) UpdateConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.CheckpointTriggerOps > 0 {
		c.cfg.CheckpointTriggerOps = cfg.CheckpointTriggerOps
	}
	if cfg.RotationSize > 0 {
		c.cfg.RotationSize = cfg.RotationSize
	}
}

// Statistics reports the coordinator's and WAL's current counters.
func (c *Coordinator) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Statistics{
		OpsSinceLastCheckpoint: c.opsSinceLastCheckpoint,
		TotalCheckpoints:       c.totalCheckpoints,
		LastCheckpointSequence: c.lastCheckpointSequence,
		WAL:                    c.wal.Statistics(),
	}
}
