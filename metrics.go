package mmarray

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordOpen is called after each Open, successful or not.
	RecordOpen(duration time.Duration, err error)

	// RecordAppend is called after each Append or AppendSlice.
	// count is the number of records the call tried to add.
	RecordAppend(count int, duration time.Duration, err error)

	// RecordRemap is called whenever the mapping capacity changes.
	RecordRemap(oldCapacity, newCapacity int, err error)

	// RecordFlush is called after each Flush. pages is the number of
	// dirty pages written back.
	RecordFlush(pages int, duration time.Duration, err error)

	// RecordTruncate is called after each Truncate or shrinking Resize.
	RecordTruncate(removed int, err error)

	// RecordSnapshot is called after each Snapshot.
	RecordSnapshot(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(time.Duration, error)            {}
func (NoopMetricsCollector) RecordAppend(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordRemap(int, int, error)                {}
func (NoopMetricsCollector) RecordFlush(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordTruncate(int, error)                  {}
func (NoopMetricsCollector) RecordSnapshot(int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	OpenCount        atomic.Int64
	OpenErrors       atomic.Int64
	AppendCount      atomic.Int64
	AppendRecords    atomic.Int64
	AppendErrors     atomic.Int64
	AppendTotalNanos atomic.Int64
	RemapCount       atomic.Int64
	RemapErrors      atomic.Int64
	FlushCount       atomic.Int64
	FlushPages       atomic.Int64
	FlushErrors      atomic.Int64
	FlushTotalNanos  atomic.Int64
	TruncateCount    atomic.Int64
	TruncateRecords  atomic.Int64
	TruncateErrors   atomic.Int64
	SnapshotCount    atomic.Int64
	SnapshotBytes    atomic.Int64
	SnapshotErrors   atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(_ time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(count int, duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
		return
	}
	b.AppendRecords.Add(int64(count))
}

// RecordRemap implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemap(_, _ int, err error) {
	b.RemapCount.Add(1)
	if err != nil {
		b.RemapErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(pages int, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushPages.Add(int64(pages))
}

// RecordTruncate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTruncate(removed int, err error) {
	b.TruncateCount.Add(1)
	if err != nil {
		b.TruncateErrors.Add(1)
		return
	}
	b.TruncateRecords.Add(int64(removed))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(bytes int64, _ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:       b.OpenCount.Load(),
		OpenErrors:      b.OpenErrors.Load(),
		AppendCount:     b.AppendCount.Load(),
		AppendRecords:   b.AppendRecords.Load(),
		AppendErrors:    b.AppendErrors.Load(),
		AppendAvgNanos:  avg(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		RemapCount:      b.RemapCount.Load(),
		RemapErrors:     b.RemapErrors.Load(),
		FlushCount:      b.FlushCount.Load(),
		FlushPages:      b.FlushPages.Load(),
		FlushErrors:     b.FlushErrors.Load(),
		FlushAvgNanos:   avg(b.FlushTotalNanos.Load(), b.FlushCount.Load()),
		TruncateCount:   b.TruncateCount.Load(),
		TruncateRecords: b.TruncateRecords.Load(),
		TruncateErrors:  b.TruncateErrors.Load(),
		SnapshotCount:   b.SnapshotCount.Load(),
		SnapshotBytes:   b.SnapshotBytes.Load(),
		SnapshotErrors:  b.SnapshotErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount       int64
	OpenErrors      int64
	AppendCount     int64
	AppendRecords   int64
	AppendErrors    int64
	AppendAvgNanos  int64
	RemapCount      int64
	RemapErrors     int64
	FlushCount      int64
	FlushPages      int64
	FlushErrors     int64
	FlushAvgNanos   int64
	TruncateCount   int64
	TruncateRecords int64
	TruncateErrors  int64
	SnapshotCount   int64
	SnapshotBytes   int64
	SnapshotErrors  int64
}
