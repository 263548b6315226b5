// Package core defines the connector contract and the backend-agnostic
// query, result and schema model shared by every connector variant.
// The model deliberately avoids relational-only semantics; translation
// into a native dialect is the connector's responsibility, never the
// model's.
package core

import (
	"context"
	"time"

	"github.com/platewise/dataconnect/pkg/config"
)

// Connector is the capability set every backend implementation must
// satisfy.
//
// Contract rules:
//   - Connect is safe to call when already connected.
//   - Disconnect is idempotent.
//   - Every ExecuteQuery updates metrics exactly once, success or failure.
//   - Blocking operations are bound by the configured connection/query
//     timeouts; exceeding a deadline yields a typed timeout error.
//   - Driver-native errors never escape: they are translated into the
//     shared taxonomy, tagged with connector type and id.
type Connector interface {
	// Identity
	ID() string
	Name() string
	Type() config.ConnectorType
	Config() *config.ConnectorConfig

	// Lifecycle
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	CreatedAt() time.Time
	LastUsed() time.Time

	// Probes
	TestConnection(ctx context.Context) (*TestResult, error)
	HealthStatus(ctx context.Context) *HealthStatus

	// Schema discovery
	DiscoverSchema(ctx context.Context) (*SchemaInfo, error)
	ListTables(ctx context.Context) ([]string, error)
	GetColumnInfo(ctx context.Context, table string) ([]ColumnInfo, error)

	// Data access
	ExecuteQuery(ctx context.Context, query *UniversalQuery) (*QueryResult, error)
	PreviewData(ctx context.Context, table string, limit int) (*PreviewResult, error)

	// Observability
	Metrics() MetricsSnapshot
}

// QueryParser builds universal queries from simplified text. It is a
// pluggable capability: callers that already hold structured queries
// never need one.
type QueryParser interface {
	Parse(text string) (*UniversalQuery, error)
	Validate(query *UniversalQuery) bool
}

// Constructor builds a connector instance from a validated config.
type Constructor func(cfg *config.ConnectorConfig) (Connector, error)
