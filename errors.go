package vectordb

import (
	"errors"
	"fmt"

	"github.com/lhlRahman/vector-database/index"
	"github.com/lhlRahman/vector-database/persistence"
	"github.com/lhlRahman/vector-database/store"
	"github.com/lhlRahman/vector-database/wal"
)

var (
	// ErrNotReady is returned by the record, search, batch, Flush and
	// Checkpoint operations when called before Initialize completes or
	// after Shutdown. The configuration setters, Statistics and
	// RecoveryInfo do not check readiness.
	ErrNotReady = errors.New("vectordb: database is not ready")

	// ErrAlreadyInitialized is returned by Initialize when called on an
	// already-ready database.
	ErrAlreadyInitialized = errors.New("vectordb: already initialized")

	// ErrEmptyKey is returned by Insert/Update/Remove when key is the
	// empty string. Get does not check for it; an empty key is simply
	// not found.
	ErrEmptyKey = errors.New("vectordb: key must not be empty")

	// ErrInvalidDimension is returned by New when Config.Dimension is
	// not positive.
	ErrInvalidDimension = errors.New("vectordb: dimension must be positive")

	// ErrKeyAbsent is the taxonomy name for a lookup or mutation against
	// a key the store does not hold.
	ErrKeyAbsent = errors.New("vectordb: key not found")

	// ErrKeyDuplicate is the taxonomy name for an insert against a key
	// already present. translateError wraps store.ErrKeyExists in it;
	// Insert and BatchInsert report a duplicate as a rejection rather
	// than returning this error.
	ErrKeyDuplicate = errors.New("vectordb: key already exists")

	// ErrBatchDisabled is returned by every batch method when
	// Config.EnableBatchOperations is false.
	ErrBatchDisabled = errors.New("vectordb: batch operations are disabled")

	// ErrUnsupportedAlgorithm is returned by SetApproximateAlgorithm and
	// New when the requested algorithm name is not exact/lsh/hnsw.
	ErrUnsupportedAlgorithm = errors.New("vectordb: unsupported algorithm")

	// ErrPersistenceDisabled is returned by Checkpoint when
	// Config.EnableAtomicPersistence is false: there is no WAL or
	// snapshot to write.
	ErrPersistenceDisabled = errors.New("vectordb: persistence is disabled")
)

// ErrDimensionMismatch indicates a query or insert vector's dimension
// does not match the database's configured dimension.
//
// The underlying index/distance error, if any, is reachable via
// errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectordb: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrChecksumMismatch wraps a WAL record whose stored checksum
// disagreed with the one recomputed from its bytes, or a truncated
// record. Recovery never returns it: wal.ReadSegment stops at the first
// bad record and replay continues with what was read.
type ErrChecksumMismatch struct{ cause error }

func (e *ErrChecksumMismatch) Error() string { return "vectordb: WAL checksum mismatch" }
func (e *ErrChecksumMismatch) Unwrap() error { return e.cause }

// ErrCorruptSnapshot wraps a snapshot file that failed header, footer,
// or checksum validation.
type ErrCorruptSnapshot struct{ cause error }

func (e *ErrCorruptSnapshot) Error() string { return "vectordb: corrupt snapshot" }
func (e *ErrCorruptSnapshot) Unwrap() error { return e.cause }

// ErrRecoveryFailed wraps a recovery attempt that could not bring the
// database to READY (analysis found a corrupted data directory, or
// replay hit an unrecoverable I/O error).
type ErrRecoveryFailed struct {
	Reason string
	cause  error
}

func (e *ErrRecoveryFailed) Error() string {
	return fmt.Sprintf("vectordb: recovery failed: %s", e.Reason)
}
func (e *ErrRecoveryFailed) Unwrap() error { return e.cause }

// translateError normalizes internal index/store/wal/persistence errors
// into the public taxonomy from spec.md §7, at the single boundary
// where the façade returns an error to its caller.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("vectordb: %w", err)
	}

	if errors.Is(err, wal.ErrChecksumMismatch) {
		return &ErrChecksumMismatch{cause: err}
	}
	if errors.Is(err, wal.ErrTruncated) {
		return &ErrChecksumMismatch{cause: err}
	}

	if errors.Is(err, persistence.ErrCorruptSnapshot) {
		return &ErrCorruptSnapshot{cause: err}
	}

	if errors.Is(err, store.ErrKeyNotFound) {
		return fmt.Errorf("%w: %w", ErrKeyAbsent, err)
	}
	if errors.Is(err, store.ErrKeyExists) {
		return fmt.Errorf("%w: %w", ErrKeyDuplicate, err)
	}

	return err
}
