package mmarray

import (
	"log/slog"
	"os"

	"github.com/hupe1980/mmarray/internal/fs"
	"github.com/hupe1980/mmarray/internal/mmap"
)

const (
	// DefaultGrowthFactor is the factor by which the mapping capacity grows.
	DefaultGrowthFactor = 2.0
	// DefaultMinReserve is the smallest mapping capacity in bytes.
	DefaultMinReserve = 1 << 20
)

// AccessPattern is a hint to the kernel about how records will be read.
type AccessPattern = mmap.AccessPattern

const (
	AccessDefault    = mmap.AccessDefault
	AccessSequential = mmap.AccessSequential
	AccessRandom     = mmap.AccessRandom
	AccessWillNeed   = mmap.AccessWillNeed
	AccessDontNeed   = mmap.AccessDontNeed
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	growthFactor     float64
	minReserve       int
	accessPattern    AccessPattern
	strictVersions   bool
	create           bool
	fileMode         os.FileMode
	flushOnClose     bool
	fsys             fs.FileSystem
}

// Option configures Open.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mmarray.BasicMetricsCollector{}
//	arr, _ := mmarray.Open(path, magic, version, mmarray.Uint64(0), mmarray.WithMetricsCollector(metrics))
//	// ... use arr ...
//	stats := metrics.GetStats()
//	fmt.Printf("Appends: %d, Avg latency: %dns\n", stats.AppendCount, stats.AppendAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mmarray.NewJSONLogger(slog.LevelInfo)
//	arr, _ := mmarray.Open(path, magic, version, layout, mmarray.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithGrowthFactor sets how much the mapping capacity grows when an append
// outruns it. Values below 1.1 are raised to 1.1.
func WithGrowthFactor(f float64) Option {
	return func(o *options) {
		o.growthFactor = max(f, 1.1)
	}
}

// WithMinReserve sets the smallest mapping capacity in bytes. The mapping is
// an address space reservation; the file itself never grows beyond the data.
func WithMinReserve(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minReserve = n
		}
	}
}

// WithAccessPattern applies an madvise hint to the mapping.
func WithAccessPattern(p AccessPattern) Option {
	return func(o *options) {
		o.accessPattern = p
	}
}

// WithStrictVersions makes Open fail with a VersionMismatch error when the
// file's format or data version differs. By default the difference is logged
// and reported by Header.
func WithStrictVersions(strict bool) Option {
	return func(o *options) {
		o.strictVersions = strict
	}
}

// WithCreate controls whether Open creates a missing file. Default true.
func WithCreate(create bool) Option {
	return func(o *options) {
		o.create = create
	}
}

// WithFileMode sets the permission bits of a newly created file. Default 0644.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithFlushOnClose makes Close flush before releasing the file.
func WithFlushOnClose(flush bool) Option {
	return func(o *options) {
		o.flushOnClose = flush
	}
}

// withFileSystem routes file operations through fsys.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		growthFactor:     DefaultGrowthFactor,
		minReserve:       DefaultMinReserve,
		create:           true,
		fileMode:         0o644,
		fsys:             fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
