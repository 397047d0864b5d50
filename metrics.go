package vecshard

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSearch is called after each search request.
	// topK is the number of neighbors requested, duration is the time taken,
	// err is nil if successful.
	RecordSearch(shardKey string, topK int, duration time.Duration, err error)

	// RecordReload is called after each reload attempt.
	RecordReload(shardKey string, duration time.Duration, err error)

	// RecordDiscovery is called after startup discovery with the number of
	// shards loaded and skipped.
	RecordDiscovery(loaded, skipped int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordReload(string, time.Duration, error)      {}
func (NoopMetricsCollector) RecordDiscovery(int, int, time.Duration)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	ReloadCount      atomic.Int64
	ReloadErrors     atomic.Int64
	ReloadTotalNanos atomic.Int64
	ShardsLoaded     atomic.Int64
	ShardsSkipped    atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(shardKey string, topK int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordReload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReload(shardKey string, duration time.Duration, err error) {
	b.ReloadCount.Add(1)
	b.ReloadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReloadErrors.Add(1)
	}
}

// RecordDiscovery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDiscovery(loaded, skipped int, duration time.Duration) {
	b.ShardsLoaded.Add(int64(loaded))
	b.ShardsSkipped.Add(int64(skipped))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		SearchCount:   b.SearchCount.Load(),
		SearchErrors:  b.SearchErrors.Load(),
		ReloadCount:   b.ReloadCount.Load(),
		ReloadErrors:  b.ReloadErrors.Load(),
		ShardsLoaded:  b.ShardsLoaded.Load(),
		ShardsSkipped: b.ShardsSkipped.Load(),
	}
	if stats.SearchCount > 0 {
		stats.SearchAvgNanos = b.SearchTotalNanos.Load() / stats.SearchCount
	}
	if stats.ReloadCount > 0 {
		stats.ReloadAvgNanos = b.ReloadTotalNanos.Load() / stats.ReloadCount
	}
	return stats
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	ReloadCount     int64
	ReloadErrors    int64
	ReloadAvgNanos  int64
	ShardsLoaded    int64
	ShardsSkipped   int64
}
