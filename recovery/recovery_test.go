package recovery_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/persistence"
	"github.com/lhlRahman/vector-database/recovery"
	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/vector"
	"github.com/lhlRahman/vector-database/wal"
)

func vec(t *testing.T, vs ...float32) vector.Vector {
	t.Helper()
	v, err := vector.FromSlice(vs)
	require.NoError(t, err)
	return v
}

func TestStateMachineHappyPathClean(t *testing.T) {
	m := recovery.New(nil)
	_, err := m.Transition(recovery.StartAnalysis)
	require.NoError(t, err)
	assert.Equal(t, recovery.Analyzing, m.State())

	_, err = m.CompleteAnalysis(recovery.AnalysisOutcome{Next: recovery.Clean})
	require.NoError(t, err)
	assert.Equal(t, recovery.Clean, m.State())

	_, err = m.Transition(recovery.RecoveryStart)
	require.NoError(t, err)
	assert.Equal(t, recovery.Recovering, m.State())

	_, err = m.Transition(recovery.RecoveryComplete)
	require.NoError(t, err)
	assert.Equal(t, recovery.Recovered, m.State())

	state, err := m.EnterReady()
	require.NoError(t, err)
	assert.Equal(t, recovery.Ready, state)
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	m := recovery.New(nil)
	_, err := m.Transition(recovery.RecoveryComplete)
	var illegal *recovery.ErrIllegalTransition
	assert.ErrorAs(t, err, &illegal)
	assert.Equal(t, recovery.Uninitialized, m.State())
}

func TestStateMachineCorruptionDuringRecovering(t *testing.T) {
	m := recovery.New(nil)
	_, _ = m.Transition(recovery.StartAnalysis)
	_, _ = m.CompleteAnalysis(recovery.AnalysisOutcome{Next: recovery.RecoveryNeeded, SnapshotSequence: 5})
	_, _ = m.Transition(recovery.RecoveryStart)

	state, err := m.Transition(recovery.CorruptionDetected)
	require.NoError(t, err)
	assert.Equal(t, recovery.Corrupted, state)
}

func TestAnalyzeCleanWhenNothingOnDisk(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()

	outcome, err := recovery.Analyze(dataDir, logDir)
	require.NoError(t, err)
	assert.Equal(t, recovery.Clean, outcome.Next)
}

func TestAnalyzeRecoveryNeededFromSnapshot(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()

	w, err := persistence.NewWriter(filepath.Join(dataDir, recovery.SnapshotFileName), 42)
	require.NoError(t, err)
	require.NoError(t, w.WriteSnapshot(42, 1, nil))
	require.NoError(t, w.Commit())

	outcome, err := recovery.Analyze(dataDir, logDir)
	require.NoError(t, err)
	assert.Equal(t, recovery.RecoveryNeeded, outcome.Next)
	assert.Equal(t, uint64(42), outcome.SnapshotSequence)
}

func TestAnalyzeRecoveryNeededFromWALOnly(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()

	w, err := wal.Open(logDir, 1<<20)
	require.NoError(t, err)
	_, err = w.Append(wal.RecordInsert, wal.EncodeInsert(wal.InsertPayload{Key: "a", Vector: vec(t, 1)}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	outcome, err := recovery.Analyze(dataDir, logDir)
	require.NoError(t, err)
	assert.Equal(t, recovery.RecoveryNeeded, outcome.Next)
	assert.Equal(t, uint64(0), outcome.SnapshotSequence)
}

// TestRecoveryOrdering exercises scenario 4: a snapshot at sequence 500
// followed by WAL inserts and deletes interleaved above it; the
// replayed map must equal
// the snapshot with the WAL applied in sequence order.
func TestRecoveryOrdering(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()

	baseSeq := uint64(500)
	snapRecords := []store.Record{
		{Key: "keep", Vector: vec(t, 1, 1)},
		{Key: "will-delete", Vector: vec(t, 2, 2)},
	}
	w, err := persistence.NewWriter(filepath.Join(dataDir, recovery.SnapshotFileName), baseSeq)
	require.NoError(t, err)
	require.NoError(t, w.WriteSnapshot(baseSeq, 1, snapRecords))
	require.NoError(t, w.Commit())

	logWriter, err := wal.Open(logDir, 1<<20)
	require.NoError(t, err)
	// Pad sequence numbers up to baseSeq so real appended records land
	// above it, mirroring "WAL contains INSERTs at 501-600".
	logWriter.SetNextSequence(baseSeq + 1)

	_, err = logWriter.Append(wal.RecordInsert, wal.EncodeInsert(wal.InsertPayload{Key: "new1", Vector: vec(t, 3, 3)}))
	require.NoError(t, err)
	_, err = logWriter.Append(wal.RecordDelete, wal.EncodeDelete(wal.DeletePayload{Key: "will-delete"}))
	require.NoError(t, err)
	_, err = logWriter.Append(wal.RecordInsert, wal.EncodeInsert(wal.InsertPayload{Key: "new2", Vector: vec(t, 4, 4)}))
	require.NoError(t, err)
	require.NoError(t, logWriter.Close())

	m := store.New()
	result, err := recovery.Recover(m, dataDir, logDir)
	require.NoError(t, err)
	assert.False(t, result.SnapshotDiscarded)
	assert.Equal(t, baseSeq, result.SnapshotSequence)
	assert.Greater(t, result.LastReplayedSequence, baseSeq)

	assert.True(t, m.Contains("keep"))
	assert.False(t, m.Contains("will-delete"))
	assert.True(t, m.Contains("new1"))
	assert.True(t, m.Contains("new2"))
	assert.Equal(t, 3, m.Len())
}

// TestCrashMidWALDropsPartialTail exercises scenario 2: three inserts
// written, the WAL segment truncated by 5 bytes, then recovered; only
// the first two keys survive.
func TestCrashMidWALDropsPartialTail(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()

	w, err := wal.Open(logDir, 1<<20)
	require.NoError(t, err)
	for _, key := range []string{"a", "b", "c"} {
		_, err := w.Append(wal.RecordInsert, wal.EncodeInsert(wal.InsertPayload{Key: key, Vector: vec(t, 1, 2)}))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	segments, err := wal.Segments(logDir)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	data, err := os.ReadFile(segments[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(segments[0], data[:len(data)-5], 0o644))

	m := store.New()
	result, err := recovery.Recover(m, dataDir, logDir)
	require.NoError(t, err)
	assert.True(t, m.Contains("a"))
	assert.True(t, m.Contains("b"))
	assert.False(t, m.Contains("c"))
	assert.Equal(t, 2, result.RecordsReplayed)
}

func TestRecoveryDiscardsCorruptSnapshotAndReplaysFromZero(t *testing.T) {
	dataDir := t.TempDir()
	logDir := t.TempDir()

	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, recovery.SnapshotFileName), []byte("not a real snapshot"), 0o644))

	w, err := wal.Open(logDir, 1<<20)
	require.NoError(t, err)
	_, err = w.Append(wal.RecordInsert, wal.EncodeInsert(wal.InsertPayload{Key: "only", Vector: vec(t, 9)}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	m := store.New()
	result, err := recovery.Recover(m, dataDir, logDir)
	require.NoError(t, err)
	assert.True(t, result.SnapshotDiscarded)
	assert.Equal(t, uint64(0), result.SnapshotSequence)
	assert.True(t, m.Contains("only"))
}
