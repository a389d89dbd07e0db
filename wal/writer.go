package wal

import (
	"os"
	"sync"
	"time"
)

// Statistics reports the writer's current state for the façade's
// statistics() operation.
type Statistics struct {
	NextSequence        uint64
	SegmentCount        int
	CurrentSegmentIndex int
	CurrentSegmentBytes int64
}

// Writer is the append-only, rotating commit log writer. One Writer
// owns exclusive access to a log directory; the persistence coordinator
// holds the only instance.
type Writer struct {
	mu sync.Mutex

	dir          string
	rotationSize int64

	file         *os.File
	segmentIdx   int
	segmentSize  int64
	nextSequence uint64
	segmentMax   map[int]uint64
}

// Open opens (or creates) the commit log in dir. If segments already
// exist, the last one is reopened for append and every segment is
// scanned to recover each segment's maximum sequence number, so that
// PruneUpTo and the next assigned sequence are both correct without the
// caller needing to supply them.
func Open(dir string, rotationSize int64) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	indexes, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		dir:          dir,
		rotationSize: rotationSize,
		segmentMax:   make(map[int]uint64),
		nextSequence: 1,
	}

	if len(indexes) == 0 {
		w.segmentIdx = 1
		f, err := os.OpenFile(segmentPath(dir, 1), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w.file = f
		return w, nil
	}

	var maxSeq uint64
	for _, idx := range indexes {
		recs, err := ReadSegment(segmentPath(dir, idx))
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.Sequence > w.segmentMax[idx] {
				w.segmentMax[idx] = r.Sequence
			}
			if r.Sequence > maxSeq {
				maxSeq = r.Sequence
			}
		}
	}

	last := indexes[len(indexes)-1]
	f, err := os.OpenFile(segmentPath(dir, last), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w.file = f
	w.segmentIdx = last
	w.segmentSize = info.Size()
	w.nextSequence = maxSeq + 1
	return w, nil
}

// SetNextSequence overrides the next sequence number to assign. Used by
// the recovery state machine when a snapshot's embedded sequence is
// higher than anything remaining in the WAL (segments covering it
// having already been pruned by an earlier checkpoint).
func (w *Writer) SetNextSequence(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n > w.nextSequence {
		w.nextSequence = n
	}
}

// Append assigns the next sequence number to a new record of the given
// type and payload, writes it to the current segment, and fsyncs
// before returning — satisfying the spec's synchronous-flush durability
// default, where a mutation is not reported successful to the caller
// until its WAL record is present and checksummed on stable storage.
// If the write pushes the current segment to or past the configured
// rotation size, a new segment is opened for subsequent writes.
func (w *Writer) Append(typ RecordType, payload []byte) (Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.nextSequence
	rec := Record{
		TimestampUs: time.Now().UnixNano() / int64(time.Microsecond),
		Type:        typ,
		Sequence:    seq,
		Payload:     payload,
	}
	buf := Encode(rec)

	if _, err := w.file.Write(buf); err != nil {
		return Record{}, err
	}
	if err := w.file.Sync(); err != nil {
		return Record{}, err
	}

	w.nextSequence++
	w.segmentSize += int64(len(buf))
	if w.segmentMax[w.segmentIdx] < seq {
		w.segmentMax[w.segmentIdx] = seq
	}

	if w.rotationSize > 0 && w.segmentSize >= w.rotationSize {
		if err := w.rotateLocked(); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Rotate closes the current segment and opens a fresh one, regardless
// of the current segment's size. Used by the checkpoint procedure to
// guarantee every mutation after a checkpoint lands in a segment that
// can later be pruned as a whole.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *Writer) rotateLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.segmentIdx++
	f, err := os.OpenFile(segmentPath(w.dir, w.segmentIdx), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.segmentSize = 0
	return nil
}

// PruneUpTo deletes every segment (other than the currently open one)
// whose maximum sequence number is less than or equal to seq, as
// required after a successful checkpoint with embedded sequence seq.
func (w *Writer) PruneUpTo(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	indexes, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	for _, idx := range indexes {
		if idx == w.segmentIdx {
			continue
		}
		maxSeq, known := w.segmentMax[idx]
		if !known || maxSeq > seq {
			continue
		}
		if err := os.Remove(segmentPath(w.dir, idx)); err != nil && !os.IsNotExist(err) {
			return err
		}
		delete(w.segmentMax, idx)
	}
	return nil
}

// Statistics reports the writer's current counters.
func (w *Writer) Statistics() Statistics {
	w.mu.Lock()
	defer w.mu.Unlock()

	segmentCount := 1 // the currently open segment, even if not yet in segmentMax
	for idx := range w.segmentMax {
		if idx != w.segmentIdx {
			segmentCount++
		}
	}
	return Statistics{
		NextSequence:        w.nextSequence,
		SegmentCount:        segmentCount,
		CurrentSegmentIndex: w.segmentIdx,
		CurrentSegmentBytes: w.segmentSize,
	}
}

// Close closes the current segment file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Dir returns the log directory this writer manages.
func (w *Writer) Dir() string { return w.dir }

// SetRotationSize changes the byte threshold that triggers rotation on
// the next Append. Takes effect immediately; it does not retroactively
// rotate the currently open segment.
func (w *Writer) SetRotationSize(n int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotationSize = n
}
