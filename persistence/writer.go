package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lhlRahman/vector-database/store"
)

// ErrWriterUsed is returned by WriteSnapshot, Commit or Abort once a
// Writer has already been committed or aborted. A Writer installs at
// most one snapshot; a caller needing another checkpoint constructs a
// new one.
var ErrWriterUsed = errors.New("persistence: writer already committed or aborted")

// Writer atomically installs a new snapshot at a canonical path: the
// body is written to a temp file in the same directory, fsynced and
// closed, then renamed over the canonical path. A reader opening the
// canonical path never observes a partially written snapshot, because
// rename is atomic on the same filesystem.
type Writer struct {
	finalPath string
	tmpPath   string
	file      *os.File
	done      bool
}

// NewWriter creates the temp file a checkpoint at the given sequence
// will be written to, alongside finalPath.
func NewWriter(finalPath string, sequence uint64) (*Writer, error) {
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(dir, fmt.Sprintf("checkpoint_%d.tmp", sequence))
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{finalPath: finalPath, tmpPath: tmpPath, file: f}, nil
}

// WriteSnapshot encodes and writes the full snapshot body to the temp
// file. It may be called at most once per Writer, before Commit.
func (w *Writer) WriteSnapshot(sequence uint64, timestampUs int64, records []store.Record) error {
	if w.done {
		return ErrWriterUsed
	}
	_, err := w.file.Write(Encode(sequence, timestampUs, records))
	return err
}

// Commit fsyncs and closes the temp file, then atomically renames it
// onto the canonical path. After Commit, the Writer is spent.
func (w *Writer) Commit() error {
	if w.done {
		return ErrWriterUsed
	}
	w.done = true

	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tmpPath)
		return err
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return err
	}
	return os.Rename(w.tmpPath, w.finalPath)
}

// Abort discards the temp file without installing it. After Abort, the
// Writer is spent.
func (w *Writer) Abort() error {
	if w.done {
		return ErrWriterUsed
	}
	w.done = true
	w.file.Close()
	return os.Remove(w.tmpPath)
}

// Load reads and decodes the snapshot at path. It returns
// ErrCorruptSnapshot (wrapped) if the file exists but fails header,
// footer, or checksum validation.
func Load(path string) (sequence uint64, timestampUs int64, records []store.Record, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, nil, err
	}
	return Decode(data)
}

// Exists reports whether a snapshot file is present at path, without
// validating its contents.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
