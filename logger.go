package vectordb

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vectordb-specific helper methods, so
// call sites log one line per domain event instead of hand-building
// the same attribute set at every call site.
type Logger struct {
	*slog.Logger
}

// NewLogger wraps an existing slog.Handler.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger returns a Logger writing JSON to stderr at level.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NewTextLogger returns a Logger writing human-readable text to stderr
// at level.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}
}

// NoopLogger discards everything. This is the default when no Logger
// is supplied via WithLogger.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// LogInsert logs an insert attempt.
func (l *Logger) LogInsert(key string, dim int, ok bool, err error) {
	if err != nil {
		l.Error("insert failed", "key", key, "dimension", dim, "error", err)
		return
	}
	l.Debug("insert completed", "key", key, "dimension", dim, "committed", ok)
}

// LogUpdate logs an update attempt.
func (l *Logger) LogUpdate(key string, ok bool, err error) {
	if err != nil {
		l.Error("update failed", "key", key, "error", err)
		return
	}
	l.Debug("update completed", "key", key, "committed", ok)
}

// LogDelete logs a delete attempt.
func (l *Logger) LogDelete(key string, ok bool, err error) {
	if err != nil {
		l.Error("delete failed", "key", key, "error", err)
		return
	}
	l.Debug("delete completed", "key", key, "committed", ok)
}

// LogSearch logs a similarity search.
func (l *Logger) LogSearch(k, found int, err error) {
	if err != nil {
		l.Error("search failed", "k", k, "error", err)
		return
	}
	l.Debug("search completed", "k", k, "found", found)
}

// LogCheckpoint logs a checkpoint attempt.
func (l *Logger) LogCheckpoint(sequence uint64, ran bool, err error) {
	if err != nil {
		l.Error("checkpoint failed", "sequence", sequence, "error", err)
		return
	}
	if !ran {
		l.Debug("checkpoint skipped", "sequence", sequence)
		return
	}
	l.Info("checkpoint completed", "sequence", sequence)
}

// LogRecovery logs the outcome of the startup recovery procedure.
func (l *Logger) LogRecovery(recordsReplayed int, snapshotDiscarded bool, err error) {
	if err != nil {
		l.Error("recovery failed", "records_replayed", recordsReplayed, "error", err)
		return
	}
	l.Info("recovery completed", "records_replayed", recordsReplayed, "snapshot_discarded", snapshotDiscarded)
}

// LogRotate logs a WAL segment rotation.
func (l *Logger) LogRotate(segment int, err error) {
	if err != nil {
		l.Error("WAL rotation failed", "segment", segment, "error", err)
		return
	}
	l.Debug("WAL rotated", "segment", segment)
}
