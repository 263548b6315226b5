// Package metrics exposes Prometheus collectors for the connector
// framework: query volume and latency per connector, active connector
// counts, health-check and reconnect outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts executed queries by connector and outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataconnect_queries_total",
			Help: "Total queries executed through the connector framework",
		},
		[]string{"connector_type", "connector_name", "status"},
	)

	// QueryDuration observes query latency per connector type.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataconnect_query_duration_seconds",
			Help:    "Query execution latency",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		},
		[]string{"connector_type", "connector_name"},
	)

	// ActiveConnectors tracks connected connector instances per type.
	ActiveConnectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataconnect_active_connectors",
			Help: "Connector instances currently connected",
		},
		[]string{"connector_type"},
	)

	// RegisteredConnectors tracks registry membership per type.
	RegisteredConnectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dataconnect_registered_connectors",
			Help: "Connector instances currently registered",
		},
		[]string{"connector_type"},
	)

	// HealthChecks counts health probe outcomes.
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataconnect_health_checks_total",
			Help: "Health checks performed by connector monitors",
		},
		[]string{"connector_type", "connector_name", "status"},
	)

	// Reconnects counts automatic reconnection attempts by outcome.
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataconnect_reconnects_total",
			Help: "Automatic reconnect attempts made by health monitors",
		},
		[]string{"connector_type", "connector_name", "outcome"},
	)

	// PoolEvictions counts pool entries evicted by capacity or idleness.
	PoolEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataconnect_pool_evictions_total",
			Help: "Connector instances evicted from type pools",
		},
		[]string{"connector_type", "reason"},
	)
)

// ObserveQuery records one query execution outcome.
func ObserveQuery(connectorType, connectorName string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	QueriesTotal.WithLabelValues(connectorType, connectorName, status).Inc()
	QueryDuration.WithLabelValues(connectorType, connectorName).Observe(d.Seconds())
}

// ObserveHealthCheck records one health probe outcome.
func ObserveHealthCheck(connectorType, connectorName string, healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(connectorType, connectorName, status).Inc()
}

// ObserveReconnect records one automatic reconnect attempt.
func ObserveReconnect(connectorType, connectorName string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	Reconnects.WithLabelValues(connectorType, connectorName, outcome).Inc()
}
