// Package pool manages bounded per-type pools of connector instances
// with LRU eviction and idle cleanup, and the connection manager that
// fronts them.
package pool

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/metrics"
)

type poolEntry struct {
	conn     core.Connector
	lastUsed time.Time
}

// Pool is a bounded set of connector instances of one type. When full,
// adding evicts the least recently used entry; eviction disconnects
// the victim before it is dropped so capacity is never exceeded while
// a stale connection lingers.
type Pool struct {
	connType config.ConnectorType
	maxSize  int
	log      *zap.Logger

	mu      sync.Mutex
	entries map[string]*poolEntry
}

// NewPool creates an empty pool. maxSize values below one fall back
// to one.
func NewPool(connType config.ConnectorType, maxSize int, log *zap.Logger) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Pool{
		connType: connType,
		maxSize:  maxSize,
		log:      log.With(zap.String("connector_type", string(connType))),
		entries:  make(map[string]*poolEntry),
	}
}

// Add inserts a connector, evicting the least recently used entry
// first when the pool is at capacity. The eviction and the insert
// happen under one lock so the size bound holds at every instant.
func (p *Pool) Add(ctx context.Context, conn core.Connector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[conn.ID()]; exists {
		p.entries[conn.ID()].lastUsed = time.Now()
		return
	}

	if len(p.entries) >= p.maxSize {
		p.evictOldestLocked(ctx)
	}
	p.entries[conn.ID()] = &poolEntry{conn: conn, lastUsed: time.Now()}
}

// evictOldestLocked removes and disconnects the LRU entry. Caller
// holds p.mu.
func (p *Pool) evictOldestLocked(ctx context.Context) {
	var oldestID string
	var oldest time.Time
	for id, e := range p.entries {
		if oldestID == "" || e.lastUsed.Before(oldest) {
			oldestID = id
			oldest = e.lastUsed
		}
	}
	if oldestID == "" {
		return
	}

	victim := p.entries[oldestID]
	delete(p.entries, oldestID)

	if err := victim.conn.Disconnect(ctx); err != nil {
		p.log.Warn("failed to disconnect evicted connector",
			zap.String("connector_id", oldestID), zap.Error(err))
	}
	metrics.PoolEvictions.WithLabelValues(string(p.connType), "capacity").Inc()
	p.log.Info("evicted least recently used connector",
		zap.String("connector_id", oldestID),
		zap.Time("last_used", victim.lastUsed))
}

// Get returns a pooled connector and refreshes its recency.
func (p *Pool) Get(id string) (core.Connector, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.conn, true
}

// Remove drops a connector from the pool without disconnecting it.
// The caller owns the teardown.
func (p *Pool) Remove(id string) (core.Connector, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return nil, false
	}
	delete(p.entries, id)
	return e.conn, true
}

// CleanupIdle disconnects and removes entries idle for longer than
// maxIdle. Returns the removed ids.
func (p *Pool) CleanupIdle(ctx context.Context, maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	p.mu.Lock()
	var victims []*poolEntry
	var removed []string
	for id, e := range p.entries {
		if e.lastUsed.Before(cutoff) {
			victims = append(victims, e)
			removed = append(removed, id)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, v := range victims {
		if err := v.conn.Disconnect(ctx); err != nil {
			p.log.Warn("failed to disconnect idle connector",
				zap.String("connector_id", v.conn.ID()), zap.Error(err))
		}
		metrics.PoolEvictions.WithLabelValues(string(p.connType), "idle").Inc()
	}
	if len(removed) > 0 {
		p.log.Info("removed idle connectors", zap.Strings("connector_ids", removed))
	}
	return removed
}

// Size returns the current entry count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// IDs returns the pooled connector ids.
func (p *Pool) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}
