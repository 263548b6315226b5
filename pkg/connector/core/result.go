package core

import (
	"time"
)

// QueryResult is the backend-agnostic result of one query execution.
type QueryResult struct {
	Rows          []map[string]interface{} `json:"rows"`
	Columns       []string                 `json:"columns"`
	RowCount      int                      `json:"row_count"`
	RowsAffected  int64                    `json:"rows_affected,omitempty"`
	ExecutionTime time.Duration            `json:"execution_time"`
	NextCursor    string                   `json:"next_cursor,omitempty"`
}

// PreviewResult is a bounded sample of a table plus a best-effort data
// completeness report: the fraction of non-null values per column over
// the sample.
type PreviewResult struct {
	QueryResult
	SampleSize   int                `json:"sample_size"`
	Completeness map[string]float64 `json:"completeness"`
}

// Completeness computes the per-column non-null fraction over rows.
// Columns entirely absent from the sample score 0.
func Completeness(columns []string, rows []map[string]interface{}) map[string]float64 {
	report := make(map[string]float64, len(columns))
	if len(rows) == 0 {
		for _, c := range columns {
			report[c] = 0
		}
		return report
	}
	for _, c := range columns {
		nonNull := 0
		for _, row := range rows {
			if v, ok := row[c]; ok && v != nil {
				nonNull++
			}
		}
		report[c] = float64(nonNull) / float64(len(rows))
	}
	return report
}

// TestResult reports the outcome of a connectivity probe.
type TestResult struct {
	Success       bool    `json:"success"`
	LatencyMs     float64 `json:"latency_ms"`
	ServerVersion string  `json:"server_version,omitempty"`
	Message       string  `json:"message,omitempty"`
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// HealthStatus is a point-in-time health snapshot of one connector.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Connected bool                   `json:"connected"`
	Status    string                 `json:"status"`
	LatencyMs float64                `json:"latency_ms,omitempty"`
	CheckedAt time.Time              `json:"checked_at"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Err       string                 `json:"error,omitempty"`
}
