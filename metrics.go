package vecsearch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordIngest is called after each ingestion batch.
	// rows is the number of input rows, skipped the number rejected.
	RecordIngest(rows, skipped int, duration time.Duration)

	// RecordPut is called after each direct upsert batch.
	RecordPut(count, failed int, duration time.Duration, err error)

	// RecordQuery is called after each query.
	// k is the number of results requested, duration is the time taken,
	// err is nil if successful.
	RecordQuery(k int, duration time.Duration, err error)

	// RecordDelete is called after each delete operation.
	RecordDelete(removed int, duration time.Duration, err error)

	// RecordRebuild is called after each index rebuild.
	RecordRebuild(records int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(int, int, time.Duration)     {}
func (NoopMetricsCollector) RecordPut(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordRebuild(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	IngestCount      atomic.Int64
	IngestRows       atomic.Int64
	IngestSkipped    atomic.Int64
	PutCount         atomic.Int64
	PutRecords       atomic.Int64
	PutFailed        atomic.Int64
	PutErrors        atomic.Int64
	QueryCount       atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	DeleteCount      atomic.Int64
	DeleteRemoved    atomic.Int64
	DeleteErrors     atomic.Int64
	RebuildCount     atomic.Int64
	RebuildErrors    atomic.Int64
	RebuildLastNanos atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(rows, skipped int, _ time.Duration) {
	b.IngestCount.Add(1)
	b.IngestRows.Add(int64(rows))
	b.IngestSkipped.Add(int64(skipped))
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(count, failed int, _ time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutRecords.Add(int64(count))
	b.PutFailed.Add(int64(failed))
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(removed int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeleteRemoved.Add(int64(removed))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(_ int, duration time.Duration, err error) {
	b.RebuildCount.Add(1)
	b.RebuildLastNanos.Store(duration.Nanoseconds())
	if err != nil {
		b.RebuildErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IngestCount:    b.IngestCount.Load(),
		IngestRows:     b.IngestRows.Load(),
		IngestSkipped:  b.IngestSkipped.Load(),
		PutCount:       b.PutCount.Load(),
		PutRecords:     b.PutRecords.Load(),
		PutFailed:      b.PutFailed.Load(),
		PutErrors:      b.PutErrors.Load(),
		QueryCount:     b.QueryCount.Load(),
		QueryErrors:    b.QueryErrors.Load(),
		QueryAvgNanos:  b.getAvgQueryNanos(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteRemoved:  b.DeleteRemoved.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		RebuildCount:   b.RebuildCount.Load(),
		RebuildErrors:  b.RebuildErrors.Load(),
		RebuildLastDur: time.Duration(b.RebuildLastNanos.Load()),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IngestCount    int64
	IngestRows     int64
	IngestSkipped  int64
	PutCount       int64
	PutRecords     int64
	PutFailed      int64
	PutErrors      int64
	QueryCount     int64
	QueryErrors    int64
	QueryAvgNanos  int64
	DeleteCount    int64
	DeleteRemoved  int64
	DeleteErrors   int64
	RebuildCount   int64
	RebuildErrors  int64
	RebuildLastDur time.Duration
}
