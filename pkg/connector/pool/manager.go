package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/connector/registry"
	"github.com/platewise/dataconnect/pkg/errors"
	"github.com/platewise/dataconnect/pkg/logger"
)

const (
	// DefaultMaxPoolSize bounds each per-type pool.
	DefaultMaxPoolSize = 10
	// DefaultMaxIdle is how long a pooled connection may sit unused
	// before the cleanup loop removes it.
	DefaultMaxIdle = 30 * time.Minute
	// DefaultCleanupInterval is the cleanup loop period.
	DefaultCleanupInterval = 5 * time.Minute
)

// ManagerOptions tunes the connection manager.
type ManagerOptions struct {
	MaxPoolSize     int
	MaxIdle         time.Duration
	CleanupInterval time.Duration
}

func (o *ManagerOptions) fillDefaults() {
	if o.MaxPoolSize <= 0 {
		o.MaxPoolSize = DefaultMaxPoolSize
	}
	if o.MaxIdle <= 0 {
		o.MaxIdle = DefaultMaxIdle
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
}

// Manager creates connected instances through a factory and keeps them
// in bounded per-type pools. A background loop removes idle
// connections; Stop cancels it and waits for it to exit.
type Manager struct {
	factory *registry.Factory
	opts    ManagerOptions
	log     *zap.Logger

	mu     sync.Mutex
	pools  map[config.ConnectorType]*Pool
	active map[string]config.ConnectorType

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewManager builds a manager around a factory.
func NewManager(factory *registry.Factory, opts ManagerOptions) *Manager {
	opts.fillDefaults()
	return &Manager{
		factory: factory,
		opts:    opts,
		log:     logger.Get().Named("pool"),
		pools:   make(map[config.ConnectorType]*Pool),
		active:  make(map[string]config.ConnectorType),
	}
}

// Start launches the idle-cleanup loop. Calling Start twice is a
// no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go m.cleanupLoop()
	m.log.Info("connection manager started",
		zap.Duration("cleanup_interval", m.opts.CleanupInterval),
		zap.Duration("max_idle", m.opts.MaxIdle))
}

// Stop cancels the cleanup loop, waits for it, then disconnects every
// pooled connection.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	for _, id := range m.ActiveIDs() {
		if err := m.RemoveConnection(ctx, id); err != nil {
			m.log.Warn("failed to remove connection during shutdown",
				zap.String("connector_id", id), zap.Error(err))
		}
	}
	m.log.Info("connection manager stopped")
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CleanupIdle(context.Background())
		}
	}
}

// poolFor returns the pool for a type, creating it on first use.
func (m *Manager) poolFor(t config.ConnectorType) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[t]
	if !ok {
		p = NewPool(t, m.opts.MaxPoolSize, m.log)
		m.pools[t] = p
	}
	return p
}

// CreateConnection builds, connects and pools a new instance. A
// connect failure leaves no trace in the manager.
func (m *Manager) CreateConnection(ctx context.Context, cfg *config.ConnectorConfig) (core.Connector, error) {
	conn, err := m.factory.Create(cfg)
	if err != nil {
		return nil, err
	}

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}

	pool := m.poolFor(conn.Type())
	pool.Add(ctx, conn)

	m.mu.Lock()
	m.active[conn.ID()] = conn.Type()
	// Drop index entries for anything the Add above evicted.
	m.reindexLocked(conn.Type(), pool)
	m.mu.Unlock()

	m.log.Info("connection created",
		zap.String("connector_id", conn.ID()),
		zap.String("connector_name", conn.Name()),
		zap.String("connector_type", string(conn.Type())))
	return conn, nil
}

// reindexLocked reconciles the active index with a pool's membership.
// Caller holds m.mu.
func (m *Manager) reindexLocked(t config.ConnectorType, p *Pool) {
	pooled := make(map[string]struct{})
	for _, id := range p.IDs() {
		pooled[id] = struct{}{}
	}
	for id, idType := range m.active {
		if idType != t {
			continue
		}
		if _, ok := pooled[id]; !ok {
			delete(m.active, id)
		}
	}
}

// GetConnection returns a pooled connection by id, refreshing its
// recency.
func (m *Manager) GetConnection(id string) (core.Connector, error) {
	m.mu.Lock()
	t, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %q is not pooled", id)
	}

	conn, ok := m.poolFor(t).Get(id)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %q is not pooled", id)
	}
	return conn, nil
}

// RemoveConnection disconnects a pooled connection and drops it.
func (m *Manager) RemoveConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "connection %q is not pooled", id)
	}

	conn, ok := m.poolFor(t).Remove(id)
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "connection %q is not pooled", id)
	}

	if err := conn.Disconnect(ctx); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection,
			"failed to disconnect connection %q", id)
	}
	m.log.Info("connection removed", zap.String("connector_id", id))
	return nil
}

// CleanupIdle sweeps every pool for over-idle connections.
func (m *Manager) CleanupIdle(ctx context.Context) []string {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	types := make([]config.ConnectorType, 0, len(m.pools))
	for t, p := range m.pools {
		pools = append(pools, p)
		types = append(types, t)
	}
	m.mu.Unlock()

	var removed []string
	for i, p := range pools {
		ids := p.CleanupIdle(ctx, m.opts.MaxIdle)
		removed = append(removed, ids...)

		m.mu.Lock()
		m.reindexLocked(types[i], p)
		m.mu.Unlock()
	}
	return removed
}

// ActiveIDs returns the ids of every pooled connection.
func (m *Manager) ActiveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Size returns the pooled connection count for one type.
func (m *Manager) Size(t config.ConnectorType) int {
	return m.poolFor(t).Size()
}
