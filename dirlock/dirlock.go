// Package dirlock guards a data/log directory pair against being opened
// by two database processes at once. It is advisory only: on platforms
// where an advisory flock isn't available, acquisition always succeeds
// and the guarantee degrades to whatever the spec already says about
// concurrent directory ownership being undefined behavior.
package dirlock

import (
	"os"
	"path/filepath"
)

const lockFileName = ".vectordb.lock"

// Lock represents a held advisory lock on a directory.
type Lock struct {
	file *os.File
	path string
}

// Acquire opens (creating if needed) a lock file inside dir and takes a
// non-blocking exclusive advisory lock on it. It returns ErrLocked if
// another process already holds it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := flock(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. The lock file itself is
// left behind; only the advisory lock is dropped.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := funlock(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}
