package core

import (
	"sync"
	"time"
)

// MetricsSnapshot is a value copy of a connector's counters, safe to
// hand across the contract boundary.
type MetricsSnapshot struct {
	TotalQueries      int64         `json:"total_queries"`
	SuccessfulQueries int64         `json:"successful_queries"`
	FailedQueries     int64         `json:"failed_queries"`
	AvgLatency        time.Duration `json:"avg_latency"`
	LastQueryAt       time.Time     `json:"last_query_at"`
}

// Metrics maintains per-connector query counters and an incrementally
// maintained rolling-average latency. Counters are monotonic.
type Metrics struct {
	mu sync.Mutex

	totalQueries      int64
	successfulQueries int64
	failedQueries     int64
	avgLatency        time.Duration
	lastQueryAt       time.Time
}

// NewMetrics creates an empty metrics recorder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record registers exactly one query outcome, updating the rolling
// average as new_avg = (old_avg*(n-1) + latest) / n.
func (m *Metrics) Record(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	if err != nil {
		m.failedQueries++
	} else {
		m.successfulQueries++
	}

	n := m.totalQueries
	m.avgLatency = time.Duration((int64(m.avgLatency)*(n-1) + int64(d)) / n)
	m.lastQueryAt = time.Now()
}

// Snapshot returns a value copy of the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MetricsSnapshot{
		TotalQueries:      m.totalQueries,
		SuccessfulQueries: m.successfulQueries,
		FailedQueries:     m.failedQueries,
		AvgLatency:        m.avgLatency,
		LastQueryAt:       m.lastQueryAt,
	}
}
