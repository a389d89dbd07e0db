package vectordb

import (
	"time"

	"github.com/lhlRahman/vector-database/distance"
	"github.com/lhlRahman/vector-database/index/hnsw"
	"github.com/lhlRahman/vector-database/index/lsh"
)

// Config enumerates every knob spec.md §6 names. Construct one with
// applyOptions rather than a struct literal, so unset fields fall back
// to the documented defaults.
type Config struct {
	// Dimension is the fixed vector length D. Required, no default.
	Dimension int
	// Algorithm selects the active index: "exact" (KD-tree, the
	// default), "lsh", or "hnsw".
	Algorithm string
	// EnableAtomicPersistence gates the WAL/snapshot layer entirely. If
	// false, mutations are in-memory only, Flush returns 0 and
	// Checkpoint returns ErrPersistenceDisabled.
	EnableAtomicPersistence bool
	// EnableBatchOperations gates BatchInsert/BatchUpdate/BatchDelete/
	// BatchSimilaritySearch.
	EnableBatchOperations bool
	// DataDirectory holds the canonical snapshot and transient
	// checkpoint temp files.
	DataDirectory string
	// LogDirectory holds WAL segment files.
	LogDirectory string
	// LogRotationSize is the byte threshold for WAL segment rotation.
	LogRotationSize int64
	// MaxLogFiles is a retention cap on segment count during normal
	// rotation. Segment pruning past a successful checkpoint (spec.md
	// §4.6) is unconditional and does not depend on this value; it is
	// carried here as a configuration surface for a future
	// time/count-based trim ahead of the next checkpoint.
	MaxLogFiles int
	// CheckpointInterval is reserved for time-based checkpoint
	// triggering (spec.md §4.8: "Time-based triggering is reserved").
	CheckpointInterval time.Duration
	// CheckpointTriggerOps is the ops-since-last-checkpoint threshold.
	CheckpointTriggerOps int
	// DistanceMetric selects the pairwise metric every index ranks
	// candidates by.
	DistanceMetric distance.Metric
	// LSH configures the approximate index when Algorithm == "lsh".
	// Dimension and Metric are overwritten from the fields above.
	LSH lsh.Options
	// HNSW configures the approximate index when Algorithm == "hnsw".
	// Dimension and Metric are overwritten from the fields above.
	HNSW hnsw.Options
	// Logger receives structured logs for every mutation, search,
	// checkpoint, and recovery event. Defaults to NoopLogger.
	Logger *Logger
}

// PersistenceConfig is the subset of Config that UpdatePersistenceConfig
// may change on a running database. Zero fields are left unchanged.
type PersistenceConfig struct {
	CheckpointTriggerOps int
	LogRotationSize      int64
	MaxLogFiles          int
}

func defaultConfig() Config {
	return Config{
		Algorithm:               "exact",
		EnableAtomicPersistence: true,
		EnableBatchOperations:   true,
		DataDirectory:           "data",
		LogDirectory:            "logs",
		LogRotationSize:         100 * 1024 * 1024,
		MaxLogFiles:             10,
		CheckpointInterval:      60 * time.Minute,
		CheckpointTriggerOps:    10_000,
		DistanceMetric:          distance.MetricEuclidean,
	}
}

// Option configures a Database at construction time.
type Option func(*Config)

// WithDimension sets the required vector dimension D.
func WithDimension(d int) Option { return func(c *Config) { c.Dimension = d } }

// WithAlgorithm selects the active index: "exact", "lsh", or "hnsw".
func WithAlgorithm(name string) Option { return func(c *Config) { c.Algorithm = name } }

// WithEnableAtomicPersistence toggles the WAL/snapshot layer.
func WithEnableAtomicPersistence(enabled bool) Option {
	return func(c *Config) { c.EnableAtomicPersistence = enabled }
}

// WithEnableBatchOperations toggles the batch API surface.
func WithEnableBatchOperations(enabled bool) Option {
	return func(c *Config) { c.EnableBatchOperations = enabled }
}

// WithDataDirectory sets the snapshot directory.
func WithDataDirectory(dir string) Option { return func(c *Config) { c.DataDirectory = dir } }

// WithLogDirectory sets the WAL segment directory.
func WithLogDirectory(dir string) Option { return func(c *Config) { c.LogDirectory = dir } }

// WithLogRotationSize sets the WAL segment rotation threshold in bytes.
func WithLogRotationSize(n int64) Option { return func(c *Config) { c.LogRotationSize = n } }

// WithMaxLogFiles sets the segment retention cap.
func WithMaxLogFiles(n int) Option { return func(c *Config) { c.MaxLogFiles = n } }

// WithCheckpointInterval sets the reserved time-based checkpoint
// interval.
func WithCheckpointInterval(d time.Duration) Option {
	return func(c *Config) { c.CheckpointInterval = d }
}

// WithCheckpointTriggerOps sets the ops-since-last-checkpoint threshold.
func WithCheckpointTriggerOps(n int) Option {
	return func(c *Config) { c.CheckpointTriggerOps = n }
}

// WithDistanceMetric selects the pairwise metric used by every index.
func WithDistanceMetric(m distance.Metric) Option {
	return func(c *Config) { c.DistanceMetric = m }
}

// WithLSHOptions overrides the LSH table/hyperplane counts and
// tombstone rebuild ratio, used only when Algorithm == "lsh".
func WithLSHOptions(o lsh.Options) Option { return func(c *Config) { c.LSH = o } }

// WithHNSWOptions overrides the HNSW graph parameters, used only when
// Algorithm == "hnsw".
func WithHNSWOptions(o hnsw.Options) Option { return func(c *Config) { c.HNSW = o } }

// WithLogger installs a Logger. The default is NoopLogger.
func WithLogger(l *Logger) Option { return func(c *Config) { c.Logger = l } }

func applyOptions(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
