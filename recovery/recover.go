package recovery

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/lhlRahman/vector-database/persistence"
	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/wal"
)

// SnapshotFileName is the canonical snapshot filename within a data
// directory.
const SnapshotFileName = "main.db"

// Analyze inspects dataDir and logDir without mutating anything and
// reports which post-analysis state the machine should enter next.
func Analyze(dataDir, logDir string) (AnalysisOutcome, error) {
	mainDBPath := filepath.Join(dataDir, SnapshotFileName)
	if persistence.Exists(mainDBPath) {
		if seq, ok := peekValidHeader(mainDBPath); ok {
			return AnalysisOutcome{Next: RecoveryNeeded, SnapshotSequence: seq}, nil
		}
		// main.db exists but does not load as a valid snapshot:
		// analysis falls through to the WAL-only check exactly as if it
		// were absent.
	}

	segments, err := wal.Segments(logDir)
	if err != nil {
		return AnalysisOutcome{}, err
	}
	if len(segments) > 0 {
		return AnalysisOutcome{Next: RecoveryNeeded, SnapshotSequence: 0}, nil
	}
	return AnalysisOutcome{Next: Clean}, nil
}

func peekValidHeader(path string) (sequence uint64, ok bool) {
	seq, _, _, err := persistence.Load(path)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Result summarizes what a completed recovery procedure found.
type Result struct {
	// SnapshotSequence is the sequence embedded in the snapshot that
	// was loaded, or 0 if none was usable.
	SnapshotSequence uint64
	// LastReplayedSequence is the largest WAL sequence number applied
	// during replay, or SnapshotSequence if no WAL records applied.
	LastReplayedSequence uint64
	// SnapshotDiscarded is true if a main.db was present but failed to
	// decode, meaning recovery fell back to replaying the entire WAL.
	SnapshotDiscarded bool
	// RecordsReplayed is the number of WAL records applied (INSERT,
	// UPDATE, or DELETE; CHECKPOINT and COMMIT are not counted).
	RecordsReplayed int
}

// Recover implements the seven-step recovery procedure: it resets m,
// loads the snapshot at dataDir/main.db if present and valid, replays
// every WAL record in logDir with sequence greater than the snapshot's,
// and leaves m holding the final replayed state. Index rebuilding
// (step 5) is the caller's responsibility, since indexes are not owned
// by this package; the caller should call each index's Rebuild with
// items derived from m once Recover returns successfully.
func Recover(m *store.Map, dataDir, logDir string) (Result, error) {
	m.Reset()

	var result Result
	mainDBPath := filepath.Join(dataDir, SnapshotFileName)
	if persistence.Exists(mainDBPath) {
		seq, _, records, err := persistence.Load(mainDBPath)
		if err != nil {
			result.SnapshotDiscarded = true
		} else {
			result.SnapshotSequence = seq
			for _, r := range records {
				if _, err := m.Insert(r.Key, r.Vector, r.Metadata); err != nil {
					return result, fmt.Errorf("recovery: applying snapshot record %q: %w", r.Key, err)
				}
			}
		}
	}

	walRecords, err := wal.ReadAll(logDir)
	if err != nil {
		return result, fmt.Errorf("recovery: reading WAL: %w", err)
	}
	sort.SliceStable(walRecords, func(i, j int) bool { return walRecords[i].Sequence < walRecords[j].Sequence })

	lastSeq := result.SnapshotSequence
	for _, rec := range walRecords {
		if rec.Sequence <= result.SnapshotSequence {
			continue
		}
		switch rec.Type {
		case wal.RecordInsert, wal.RecordUpdate:
			ip, err := wal.DecodeInsert(rec.Payload)
			if err != nil {
				continue
			}
			if m.Contains(ip.Key) {
				if _, err := m.Update(ip.Key, ip.Vector, ip.Metadata); err != nil {
					return result, fmt.Errorf("recovery: replaying update %q: %w", ip.Key, err)
				}
			} else {
				if _, err := m.Insert(ip.Key, ip.Vector, ip.Metadata); err != nil {
					return result, fmt.Errorf("recovery: replaying insert %q: %w", ip.Key, err)
				}
			}
			result.RecordsReplayed++
		case wal.RecordDelete:
			dp, err := wal.DecodeDelete(rec.Payload)
			if err != nil {
				continue
			}
			if _, err := m.Delete(dp.Key); err != nil && err != store.ErrKeyNotFound {
				return result, fmt.Errorf("recovery: replaying delete %q: %w", dp.Key, err)
			}
			result.RecordsReplayed++
		case wal.RecordCheckpoint, wal.RecordCommit:
			// Ordering information only; no map mutation.
		}
		lastSeq = rec.Sequence
	}
	result.LastReplayedSequence = lastSeq
	return result, nil
}
