package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
	"github.com/platewise/dataconnect/pkg/logger"
	"github.com/platewise/dataconnect/pkg/metrics"
)

// Options tunes registry behavior.
type Options struct {
	// HealthInterval is the per-connector probe period. Zero means
	// DefaultHealthInterval.
	HealthInterval time.Duration
	// AutoReconnect lets monitors re-establish dropped connections.
	AutoReconnect bool
}

type entry struct {
	conn    core.Connector
	monitor *healthMonitor
	// stopping marks an entry claimed by an in-flight Unregister so a
	// concurrent call cannot stop the monitor twice.
	stopping bool
}

// Registry tracks registered connector instances by id and enforces
// name uniqueness. Each registered connector gets a health monitor
// whose lifetime is bound to the registration.
type Registry struct {
	factory *Factory
	log     *zap.Logger
	opts    Options

	mu     sync.RWMutex
	byID   map[string]*entry
	byName map[string]string
	closed bool
}

// New returns an empty registry. The factory backs CreateAndRegister
// and may be nil when callers construct connectors themselves.
func New(factory *Factory, opts Options) *Registry {
	return &Registry{
		factory: factory,
		log:     logger.Get().Named("registry"),
		opts:    opts,
		byID:    make(map[string]*entry),
		byName:  make(map[string]string),
	}
}

// Register adds a connector instance and starts its health monitor.
// The connector is not connected here; registration and connection are
// separate steps. Duplicate names are a conflict and leave the
// registry unchanged.
func (r *Registry) Register(conn core.Connector) error {
	if conn == nil {
		return errors.New(errors.ErrorTypeConfiguration, "nil connector")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New(errors.ErrorTypeInternal, "registry is closed")
	}
	if _, exists := r.byName[conn.Name()]; exists {
		return errors.Newf(errors.ErrorTypeConflict,
			"connector name %q is already registered", conn.Name())
	}
	if _, exists := r.byID[conn.ID()]; exists {
		return errors.Newf(errors.ErrorTypeConflict,
			"connector id %q is already registered", conn.ID())
	}

	monitor := newHealthMonitor(conn,
		r.log.With(
			zap.String("connector_id", conn.ID()),
			zap.String("connector_name", conn.Name()),
		),
		r.opts.HealthInterval, r.opts.AutoReconnect)

	r.byID[conn.ID()] = &entry{conn: conn, monitor: monitor}
	r.byName[conn.Name()] = conn.ID()
	metrics.RegisteredConnectors.WithLabelValues(string(conn.Type())).Inc()

	monitor.start()
	r.log.Info("connector registered",
		zap.String("connector_id", conn.ID()),
		zap.String("connector_name", conn.Name()),
		zap.String("connector_type", string(conn.Type())))
	return nil
}

// CreateAndRegister builds a connector from config through the
// registry's factory and registers it. The instance is not connected;
// a registration failure leaves no state and no live connection.
func (r *Registry) CreateAndRegister(cfg *config.ConnectorConfig) (core.Connector, error) {
	if r.factory == nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "registry has no factory")
	}

	conn, err := r.factory.Create(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.Register(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Unregister stops the health monitor, then removes the connector and
// disconnects it. The monitor is fully stopped before any teardown so
// no probe races the removal or the disconnect.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.byID[id]
	if ok && e.stopping {
		ok = false
	}
	if ok {
		e.stopping = true
	}
	r.mu.Unlock()

	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "connector %q is not registered", id)
	}

	e.monitor.stop()

	r.mu.Lock()
	delete(r.byID, id)
	delete(r.byName, e.conn.Name())
	r.mu.Unlock()

	metrics.RegisteredConnectors.WithLabelValues(string(e.conn.Type())).Dec()

	if err := e.conn.Disconnect(ctx); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection,
			"failed to disconnect connector %q during unregistration", id)
	}
	r.log.Info("connector unregistered", zap.String("connector_id", id))
	return nil
}

// Get looks a connector up by instance id.
func (r *Registry) Get(id string) (core.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector %q is not registered", id)
	}
	return e.conn, nil
}

// GetByName looks a connector up by its unique configured name.
func (r *Registry) GetByName(name string) (core.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector named %q is not registered", name)
	}
	return r.byID[id].conn, nil
}

// List returns all registered connectors ordered by name.
func (r *Registry) List() []core.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Connector, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e.conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ListByType returns registered connectors of one type, by name.
func (r *Registry) ListByType(t config.ConnectorType) []core.Connector {
	var out []core.Connector
	for _, conn := range r.List() {
		if conn.Type() == t {
			out = append(out, conn)
		}
	}
	return out
}

// Size returns the number of registered connectors.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// ConnectAll connects every registered connector, continuing past
// failures and reporting them per id.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, conn := range r.List() {
		if err := conn.Connect(ctx); err != nil {
			results[conn.ID()] = err
		}
	}
	return results
}

// DisconnectAll disconnects every registered connector, continuing
// past failures and reporting them per id.
func (r *Registry) DisconnectAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	for _, conn := range r.List() {
		if err := conn.Disconnect(ctx); err != nil {
			results[conn.ID()] = err
		}
	}
	return results
}

// HealthCheckAll probes every registered connector.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]*core.HealthStatus {
	results := make(map[string]*core.HealthStatus)
	for _, conn := range r.List() {
		results[conn.ID()] = conn.HealthStatus(ctx)
	}
	return results
}

// MetricsAll snapshots per-connector query counters.
func (r *Registry) MetricsAll() map[string]core.MetricsSnapshot {
	results := make(map[string]core.MetricsSnapshot)
	for _, conn := range r.List() {
		results[conn.ID()] = conn.Metrics()
	}
	return results
}

// CleanupInactive unregisters connectors that are disconnected and
// have been idle for longer than maxIdle. Returns the removed ids.
func (r *Registry) CleanupInactive(ctx context.Context, maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	var stale []string
	r.mu.RLock()
	for id, e := range r.byID {
		if !e.conn.IsConnected() && e.conn.LastUsed().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	var removed []string
	for _, id := range stale {
		if err := r.Unregister(ctx, id); err == nil {
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		r.log.Info("cleaned up inactive connectors", zap.Strings("connector_ids", removed))
	}
	return removed
}

// Close unregisters everything and refuses further registrations.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := r.Unregister(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
