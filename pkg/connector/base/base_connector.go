// Package base provides the shared scaffold embedded by every concrete
// connector: instance identity, lifecycle flags, metrics accounting,
// deadline handling and error translation. Backend specifics stay in
// the variant packages.
package base

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
	"github.com/platewise/dataconnect/pkg/logger"
	"github.com/platewise/dataconnect/pkg/metrics"
)

// Connector is the embeddable scaffold. It implements the identity,
// lifecycle-flag and metrics portions of the core contract; variants
// implement the I/O operations.
type Connector struct {
	id        string
	cfg       *config.ConnectorConfig
	log       *zap.Logger
	createdAt time.Time

	connected atomic.Bool

	mu       sync.Mutex
	lastUsed time.Time

	queryMetrics *core.Metrics
}

// New creates the scaffold with a generated instance id.
func New(cfg *config.ConnectorConfig) *Connector {
	return NewWithID(cfg, uuid.NewString())
}

// NewWithID creates the scaffold with a caller-chosen id. Used by the
// connection manager when it needs deterministic ids.
func NewWithID(cfg *config.ConnectorConfig, id string) *Connector {
	now := time.Now()
	return &Connector{
		id:  id,
		cfg: cfg,
		log: logger.Get().With(
			zap.String("connector_type", string(cfg.Type)),
			zap.String("connector_name", cfg.Name),
			zap.String("connector_id", id),
		),
		createdAt:    now,
		lastUsed:     now,
		queryMetrics: core.NewMetrics(),
	}
}

// ID returns the generated instance id.
func (c *Connector) ID() string { return c.id }

// Name returns the configured connector name.
func (c *Connector) Name() string { return c.cfg.Name }

// Type returns the backend technology.
func (c *Connector) Type() config.ConnectorType { return c.cfg.Type }

// Config returns the owning configuration.
func (c *Connector) Config() *config.ConnectorConfig { return c.cfg }

// CreatedAt returns the instance creation time.
func (c *Connector) CreatedAt() time.Time { return c.createdAt }

// Logger returns the connector-scoped logger.
func (c *Connector) Logger() *zap.Logger { return c.log }

// IsConnected reports the lifecycle flag. It is true only strictly
// between a successful connect and a disconnect or fatal failure.
func (c *Connector) IsConnected() bool { return c.connected.Load() }

// MarkConnected flips the lifecycle flag after a successful connect.
func (c *Connector) MarkConnected() {
	if c.connected.CompareAndSwap(false, true) {
		metrics.ActiveConnectors.WithLabelValues(string(c.cfg.Type)).Inc()
	}
	c.Touch()
}

// MarkDisconnected flips the lifecycle flag on disconnect or fatal
// failure. Safe to call repeatedly.
func (c *Connector) MarkDisconnected() {
	if c.connected.CompareAndSwap(true, false) {
		metrics.ActiveConnectors.WithLabelValues(string(c.cfg.Type)).Dec()
	}
}

// LastUsed returns the time of the most recent operation.
func (c *Connector) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Touch records activity on the connector.
func (c *Connector) Touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// Metrics returns a value snapshot of the query counters.
func (c *Connector) Metrics() core.MetricsSnapshot {
	return c.queryMetrics.Snapshot()
}

// EnsureConnected fails fast with a typed connection error when the
// connector is not connected. No network call is attempted.
func (c *Connector) EnsureConnected() error {
	if !c.connected.Load() {
		return errors.Newf(errors.ErrorTypeConnection, "connector %q is not connected", c.cfg.Name).
			WithConnector(string(c.cfg.Type), c.id)
	}
	return nil
}

// ConnectContext derives a context bound by the connection timeout.
func (c *Connector) ConnectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.ConnectionTimeout)
}

// QueryContext derives a context bound by the query timeout. A
// per-query timeout overrides the connector-level one.
func (c *Connector) QueryContext(ctx context.Context, q *core.UniversalQuery) (context.Context, context.CancelFunc) {
	timeout := c.cfg.QueryTimeout
	if q != nil && q.Timeout > 0 {
		timeout = q.Timeout
	}
	return context.WithTimeout(ctx, timeout)
}

// ObserveQuery records one query outcome in both the per-connector
// counters and the Prometheus collectors. Call it exactly once per
// ExecuteQuery, on both the success and the failure path.
func (c *Connector) ObserveQuery(start time.Time, err error) {
	elapsed := time.Since(start)
	c.queryMetrics.Record(elapsed, err)
	metrics.ObserveQuery(string(c.cfg.Type), c.cfg.Name, elapsed, err)
	c.Touch()
}

// Translate wraps a driver-native error into the shared taxonomy,
// tagged with this connector's identity. Deadline and cancellation
// errors become the timeout type regardless of the fallback.
func (c *Connector) Translate(err error, fallback errors.ErrorType, message string) error {
	if err == nil {
		return nil
	}
	if e, ok := errors.As(err); ok {
		// Already translated; make sure identity tags are present.
		if e.ConnectorID == "" {
			e.WithConnector(string(c.cfg.Type), c.id)
		}
		return err
	}

	errType := fallback
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		errType = errors.ErrorTypeTimeout
	}

	return errors.Wrap(err, errType, message).
		WithConnector(string(c.cfg.Type), c.id)
}
